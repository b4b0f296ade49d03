package model

import "math"

// EntityStatistics holds the aggregated amounts of one merchant over a window.
// Build it with NewEntityStatistics so Ratio is computed exactly once.
type EntityStatistics struct {
	EntityID         string  `json:"entity_id" db:"entity_id"`
	MedianAmount     float64 `json:"median_amount" db:"median_amount"`
	AverageAmount    float64 `json:"average_amount" db:"average_amount"`
	TransactionCount int64   `json:"transaction_count" db:"transaction_count"`
	Ratio            float64 `json:"ratio"`
	RatioDefined     bool    `json:"ratio_defined"`
}

// NewEntityStatistics computes the dispersion ratio (median / average).
// The ratio stays undefined when the average is zero or an input is not finite.
func NewEntityStatistics(entityID string, median, average float64, count int64) EntityStatistics {
	s := EntityStatistics{
		EntityID:         entityID,
		MedianAmount:     median,
		AverageAmount:    average,
		TransactionCount: count,
	}

	if average == 0 || !isFinite(median) || !isFinite(average) {
		return s
	}

	ratio := median / average
	if !isFinite(ratio) {
		return s
	}

	s.Ratio = ratio
	s.RatioDefined = true
	return s
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
