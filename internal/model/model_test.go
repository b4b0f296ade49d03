package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntityStatistics(t *testing.T) {
	tests := []struct {
		name        string
		median      float64
		average     float64
		wantDefined bool
		wantRatio   float64
	}{
		{name: "skewed merchant", median: 150, average: 95.5, wantDefined: true, wantRatio: 150 / 95.5},
		{name: "symmetric merchant", median: 100, average: 100, wantDefined: true, wantRatio: 1},
		{name: "zero average", median: 10, average: 0, wantDefined: false},
		{name: "nan median", median: math.NaN(), average: 10, wantDefined: false},
		{name: "infinite average", median: 10, average: math.Inf(1), wantDefined: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewEntityStatistics("m-1", tt.median, tt.average, 10)
			assert.Equal(t, tt.wantDefined, s.RatioDefined)
			if tt.wantDefined {
				assert.InDelta(t, tt.wantRatio, s.Ratio, 1e-12)
			} else {
				assert.Zero(t, s.Ratio)
			}
		})
	}
}

func TestRunConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRunConfig().Validate())

	cfg := DefaultRunConfig()
	cfg.WindowDays = 0
	cfg.MaxConcurrency = 0
	cfg.MaxRetries = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), "window_days")
	assert.Contains(t, err.Error(), "max_concurrency")
	assert.Contains(t, err.Error(), "max_retries")
}

func TestEffectiveDetailWindowDays(t *testing.T) {
	cfg := DefaultRunConfig()
	assert.Equal(t, 30, cfg.EffectiveDetailWindowDays())

	cfg.DetailWindowDays = 7
	assert.Equal(t, 7, cfg.EffectiveDetailWindowDays())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      ErrorKind
		retriable bool
	}{
		{"connection", NewDataSourceError("warehouse", KindConnection, errors.New("reset")), KindConnection, true},
		{"wrapped auth", fmt.Errorf("fetch: %w", NewDataSourceError("api", KindAuth, nil)), KindAuth, false},
		{"rate limit", NewDataSourceError("api", KindRateLimit, nil), KindRateLimit, true},
		{"validation", &ValidationError{Field: "amount", Message: "not finite"}, KindValidation, false},
		{"deadline", fmt.Errorf("run: %w", context.DeadlineExceeded), KindTimeout, true},
		{"cancelled", context.Canceled, KindCancelled, false},
		{"unknown", errors.New("boom"), KindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.retriable, IsRetriable(tt.err))
		})
	}
}

func TestWindowEndingAt(t *testing.T) {
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	w := WindowEndingAt(end, 30)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.True(t, w.Contains(w.Start))
	assert.False(t, w.Contains(end))
}

func TestPipelineStateFreeze(t *testing.T) {
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	st := NewPipelineState("run-1", DefaultRunConfig(), now)
	assert.Equal(t, StatusInit, st.Status)

	st.Start()
	assert.Equal(t, StatusRunning, st.Status)

	st.Fail(ErrorRecord{Stage: "FETCH_STATS", Kind: KindCancelled, Message: "cancelled"})
	assert.True(t, st.Failed())
	assert.True(t, st.Cancelled)

	st.Freeze(now.Add(time.Second))
	assert.Equal(t, StatusError, st.Status)
	assert.True(t, st.Frozen())

	st.AddFindings(AnomalyFinding{TransactionID: "t-1"})
	st.SetFlagged([]string{"m-1"})
	st.AddError(ErrorRecord{Stage: "REPORT"})
	assert.Empty(t, st.Findings)
	assert.Empty(t, st.Flagged)
	assert.Len(t, st.Errors, 1)
}
