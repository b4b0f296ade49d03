package anomaly

import (
	"fmt"
	"math"
	"sort"

	"github.com/Alias1177/MerchantScope/internal/calculate"
	"github.com/Alias1177/MerchantScope/internal/model"
)

// Config holds the scoring parameters
type Config struct {
	DeviationThreshold float64 // in standard deviations
	MinSampleSize      int
}

// DefaultConfig returns threshold 2.0 and minimum sample size 3
func DefaultConfig() Config {
	return Config{DeviationThreshold: 2.0, MinSampleSize: 3}
}

// Analysis is the outcome of scoring one merchant
type Analysis struct {
	EntityID string
	Findings []model.AnomalyFinding
	Profile  model.DistributionProfile
	Skip     string // non-empty when scoring was not attempted
}

// Analyze scores every record of a merchant by its z-score and returns
// the records with |z| >= DeviationThreshold, highest deviation first.
func Analyze(entityID string, records []model.TransactionRecord, cfg Config) (Analysis, error) {
	result := Analysis{EntityID: entityID, Findings: []model.AnomalyFinding{}}

	if len(records) == 0 {
		return result, &model.ValidationError{Field: "records", Message: "empty record set for " + entityID}
	}

	amounts := make([]float64, len(records))
	for i, r := range records {
		if r.EntityID != entityID {
			return result, &model.ValidationError{
				Field:   "entity_id",
				Message: fmt.Sprintf("record %s belongs to %s, expected %s", r.TransactionID, r.EntityID, entityID),
			}
		}
		if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) {
			return result, &model.ValidationError{
				Field:   "amount",
				Message: fmt.Sprintf("record %s has non-finite amount", r.TransactionID),
			}
		}
		amounts[i] = r.Amount
	}

	mean := calculate.Average(amounts)
	sigma := calculate.PopulationStdDev(amounts, mean)
	result.Profile = profile(entityID, amounts, mean, sigma)

	if len(records) < cfg.MinSampleSize {
		result.Skip = fmt.Sprintf("sample size %d below minimum %d", len(records), cfg.MinSampleSize)
		return result, nil
	}

	// identical amounts: nothing to explain
	if sigma == 0 {
		return result, nil
	}

	for _, r := range records {
		z := (r.Amount - mean) / sigma
		score := math.Abs(z)
		if score < cfg.DeviationThreshold {
			continue
		}

		reason := model.ReasonHighOutlier
		if z < 0 {
			reason = model.ReasonLowOutlier
		}

		result.Findings = append(result.Findings, model.AnomalyFinding{
			TransactionID:  r.TransactionID,
			EntityID:       entityID,
			DeviationScore: score,
			Amount:         r.Amount,
			Reason:         reason,
			Timestamp:      r.Timestamp,
		})
	}

	SortFindings(result.Findings)
	return result, nil
}

// SortFindings orders by deviation score descending, then timestamp, then transaction id
func SortFindings(findings []model.AnomalyFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.DeviationScore != b.DeviationScore {
			return a.DeviationScore > b.DeviationScore
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.TransactionID < b.TransactionID
	})
}

func profile(entityID string, amounts []float64, mean, sigma float64) model.DistributionProfile {
	min, q25, median, q75, max := calculate.Quartiles(amounts)

	p := model.DistributionProfile{
		EntityID: entityID,
		Count:    len(amounts),
		Mean:     mean,
		StdDev:   sigma,
		Min:      min,
		Q25:      q25,
		Median:   median,
		Q75:      q75,
		Max:      max,
	}
	if mean != 0 {
		p.Ratio = median / mean
	}

	iqr := q75 - q25
	p.IQRLower = q25 - 1.5*iqr
	p.IQRUpper = q75 + 1.5*iqr
	for _, a := range amounts {
		if a < p.IQRLower || a > p.IQRUpper {
			p.IQROutlierCount++
		}
		if q75 > 0 && a > 2*q75 {
			p.LargeCount++
		}
	}
	return p
}
