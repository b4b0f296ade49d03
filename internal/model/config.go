package model

import (
	"errors"
	"time"
)

// RunConfig holds the options of a single pipeline run
type RunConfig struct {
	WindowDays          int     `json:"window_days"`
	DispersionThreshold float64 `json:"dispersion_threshold"`
	DeviationThreshold  float64 `json:"deviation_threshold"`
	MinSampleSize       int     `json:"min_sample_size"`
	MaxConcurrency      int     `json:"max_concurrency"`
	MaxRetries          int     `json:"max_retries"`
	TimeoutSeconds      int     `json:"timeout_seconds"`

	MinTransactionCount int64 `json:"min_transaction_count"`
	DetailWindowDays    int   `json:"detail_window_days"`    // 0 uses WindowDays
	MaxDetailedEntities int   `json:"max_detailed_entities"` // 0 means all flagged entities
	StatsLimit          int   `json:"stats_limit"`           // 0 means no limit
}

// DefaultRunConfig returns the documented defaults
func DefaultRunConfig() RunConfig {
	return RunConfig{
		WindowDays:          30,
		DispersionThreshold: 1.5,
		DeviationThreshold:  2.0,
		MinSampleSize:       3,
		MaxConcurrency:      4,
		MaxRetries:          3,
		TimeoutSeconds:      300,
		MinTransactionCount: 1,
	}
}

// Validate checks every option against its allowed range
func (c RunConfig) Validate() error {
	var errs []error
	check := func(ok bool, field, msg string) {
		if !ok {
			errs = append(errs, &ValidationError{Field: field, Message: msg})
		}
	}

	check(c.WindowDays > 0, "window_days", "must be > 0")
	check(c.DispersionThreshold > 0, "dispersion_threshold", "must be > 0")
	check(c.DeviationThreshold > 0, "deviation_threshold", "must be > 0")
	check(c.MinSampleSize >= 1, "min_sample_size", "must be >= 1")
	check(c.MaxConcurrency >= 1, "max_concurrency", "must be >= 1")
	check(c.MaxRetries >= 0, "max_retries", "must be >= 0")
	check(c.TimeoutSeconds > 0, "timeout_seconds", "must be > 0")
	check(c.MinTransactionCount >= 0, "min_transaction_count", "must be >= 0")
	check(c.DetailWindowDays >= 0, "detail_window_days", "must be >= 0")
	check(c.MaxDetailedEntities >= 0, "max_detailed_entities", "must be >= 0")
	check(c.StatsLimit >= 0, "stats_limit", "must be >= 0")

	return errors.Join(errs...)
}

// Timeout is the wall-clock bound of a run
func (c RunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EffectiveDetailWindowDays resolves the detail window length
func (c RunConfig) EffectiveDetailWindowDays() int {
	if c.DetailWindowDays > 0 {
		return c.DetailWindowDays
	}
	return c.WindowDays
}
