package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MerchantScope/internal/model"
)

var now = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

func terminalState(t *testing.T) *model.PipelineState {
	t.Helper()

	st := model.NewPipelineState("run-1", model.DefaultRunConfig(), now)
	st.Start()
	st.SetStatistics([]model.EntityStatistics{
		model.NewEntityStatistics("m-low", 120, 100, 10),
		model.NewEntityStatistics("m-mid", 160, 100, 10),
		model.NewEntityStatistics("m-high", 200, 100, 10),
	})
	st.SetFlagged([]string{"m-mid", "m-high"})
	st.AddFindings(
		model.AnomalyFinding{TransactionID: "t-3", EntityID: "m-mid", DeviationScore: 2.1, Timestamp: now},
		model.AnomalyFinding{TransactionID: "t-1", EntityID: "m-high", DeviationScore: 2.5, Timestamp: now},
		model.AnomalyFinding{TransactionID: "t-2", EntityID: "m-high", DeviationScore: 3.5, Timestamp: now},
	)
	st.AddProfile(model.DistributionProfile{EntityID: "m-mid", Count: 4})
	st.AddProfile(model.DistributionProfile{EntityID: "m-high", Count: 4})
	st.AddError(model.ErrorRecord{Stage: string(model.StageAnalyze), EntityID: "m-x", Kind: model.KindValidation, Message: "bad"})
	st.AddError(model.ErrorRecord{Stage: string(model.StageFetchDetails), EntityID: "m-y", Kind: model.KindConnection, Message: "reset", Retriable: true})
	st.Freeze(now.Add(time.Minute))
	return st
}

func TestAssembleOrdering(t *testing.T) {
	rep := Assemble(terminalState(t))

	require.Len(t, rep.Flagged, 2)
	assert.Equal(t, "m-high", rep.Flagged[0].EntityID)
	assert.Equal(t, "m-mid", rep.Flagged[1].EntityID)

	ids := make([]string, len(rep.Findings))
	for i, f := range rep.Findings {
		ids[i] = f.TransactionID
	}
	assert.Equal(t, []string{"t-2", "t-1", "t-3"}, ids)

	assert.Equal(t, "m-high", rep.Profiles[0].EntityID)
	assert.Equal(t, string(model.StageFetchDetails), rep.Errors[0].Stage)

	assert.Equal(t, Summary{
		TotalEntities: 3,
		FlaggedCount:  2,
		AnalyzedCount: 2,
		FindingsCount: 3,
		SkippedCount:  0,
		ErrorCount:    2,
	}, rep.Summary)
	assert.Equal(t, model.StatusDone, rep.Status)
	assert.Equal(t, now.Add(time.Minute), rep.GeneratedAt)
}

func TestAssembleIsIdempotent(t *testing.T) {
	st := terminalState(t)

	first := Assemble(st)
	second := Assemble(st)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.Fingerprint)
	assert.Equal(t, Fingerprint(first), first.Fingerprint)
}

func TestAssembleEmptyState(t *testing.T) {
	st := model.NewPipelineState("run-empty", model.DefaultRunConfig(), now)
	st.Start()
	st.SetStatistics([]model.EntityStatistics{})
	st.Freeze(now)

	rep := Assemble(st)

	assert.Equal(t, model.StatusDone, rep.Status)
	assert.NotNil(t, rep.Flagged)
	assert.NotNil(t, rep.Findings)
	assert.NotNil(t, rep.Errors)
	assert.Zero(t, rep.Summary.FlaggedCount)
}

func TestAssembleFailedRun(t *testing.T) {
	st := model.NewPipelineState("run-failed", model.DefaultRunConfig(), now)
	st.Start()
	st.Fail(model.ErrorRecord{Stage: string(model.StageFetchStats), Kind: model.KindAuth, Message: "denied"})
	st.Freeze(now)

	rep := Assemble(st)

	assert.Equal(t, model.StatusError, rep.Status)
	assert.Empty(t, rep.Flagged)
	assert.Zero(t, rep.Summary.FlaggedCount)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, model.KindAuth, rep.Errors[0].Kind)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	rep := Assemble(terminalState(t))
	changed := rep
	changed.Summary.FindingsCount++

	assert.NotEqual(t, Fingerprint(rep), Fingerprint(changed))
}

func TestText(t *testing.T) {
	out := Text(Assemble(terminalState(t)))

	assert.Contains(t, out, "Merchant dispersion report run-1")
	assert.Contains(t, out, "3 total, 2 flagged, 2 analyzed")
	assert.Contains(t, out, "m-high ratio 2.000")
	assert.Contains(t, out, "m-high/t-2")
	assert.Contains(t, out, "FETCH_DETAILS/m-y [connection] reset")
}
