package filter

import (
	"fmt"
	"sort"

	"github.com/Alias1177/MerchantScope/internal/model"
)

// StageName is used when recording skips produced by the filter
const StageName = string(model.StageFilter)

// Options controls which merchants are flagged
type Options struct {
	Threshold  float64 // ratio must be strictly greater
	MinSupport int64   // minimum transaction count
}

// DefaultOptions returns threshold 1.5 and min support 1
func DefaultOptions() Options {
	return Options{Threshold: 1.5, MinSupport: 1}
}

// Result holds the flagged merchants and the ones excluded on validation grounds
type Result struct {
	Flagged []model.EntityStatistics // ratio descending, then entity id
	Skipped []model.SkipRecord       // entity id order
}

// FlaggedIDs returns the flagged entity ids in result order
func (r Result) FlaggedIDs() []string {
	ids := make([]string, len(r.Flagged))
	for i, s := range r.Flagged {
		ids[i] = s.EntityID
	}
	return ids
}

// Filter selects merchants whose dispersion ratio exceeds the threshold.
// Merchants without a defined ratio land in Skipped with a note.
func Filter(stats []model.EntityStatistics, opts Options) Result {
	res := Result{
		Flagged: []model.EntityStatistics{},
		Skipped: []model.SkipRecord{},
	}

	for _, s := range stats {
		if s.TransactionCount < 0 {
			res.Skipped = append(res.Skipped, model.SkipRecord{
				Stage:    StageName,
				EntityID: s.EntityID,
				Reason:   fmt.Sprintf("negative transaction count %d", s.TransactionCount),
			})
			continue
		}

		if !s.RatioDefined {
			res.Skipped = append(res.Skipped, model.SkipRecord{
				Stage:    StageName,
				EntityID: s.EntityID,
				Reason:   fmt.Sprintf("ratio undefined (median %.4f, average %.4f)", s.MedianAmount, s.AverageAmount),
			})
			continue
		}

		if s.Ratio > opts.Threshold && s.TransactionCount >= opts.MinSupport {
			res.Flagged = append(res.Flagged, s)
		}
	}

	SortByRatio(res.Flagged)
	sort.SliceStable(res.Skipped, func(i, j int) bool {
		return res.Skipped[i].EntityID < res.Skipped[j].EntityID
	})

	return res
}

// SortByRatio orders statistics by ratio descending, then transaction count
// descending, then entity id
func SortByRatio(stats []model.EntityStatistics) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Ratio != stats[j].Ratio {
			return stats[i].Ratio > stats[j].Ratio
		}
		if stats[i].TransactionCount != stats[j].TransactionCount {
			return stats[i].TransactionCount > stats[j].TransactionCount
		}
		return stats[i].EntityID < stats[j].EntityID
	})
}
