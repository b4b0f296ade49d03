package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Alias1177/MerchantScope/internal/analysis/filter"
	"github.com/Alias1177/MerchantScope/internal/calculate"
	"github.com/Alias1177/MerchantScope/internal/model"
)

const sourceName = "memory"

// Store keeps transactions in memory and serves both aggregates and details.
// Aggregates are computed from positive amounts, like the warehouse query.
type Store struct {
	mu      sync.RWMutex
	records map[string][]model.TransactionRecord
}

// New creates a store holding the given records
func New(records ...model.TransactionRecord) *Store {
	s := &Store{records: make(map[string][]model.TransactionRecord)}
	s.Add(records...)
	return s
}

// LoadFile creates a store from a JSON records file
func LoadFile(path string) (*Store, error) {
	records, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return New(records...), nil
}

// ReadFile reads a JSON array of transaction records
func ReadFile(path string) ([]model.TransactionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}

	var records []model.TransactionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing fixture: %w", err)
	}
	return records, nil
}

// Add appends records
func (s *Store) Add(records ...model.TransactionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.EntityID] = append(s.records[r.EntityID], r)
	}
}

// FetchAggregates computes per-merchant median, average and count within the window
func (s *Store) FetchAggregates(ctx context.Context, window model.Window, f model.StatsFilter) ([]model.EntityStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make([]model.EntityStatistics, 0, len(s.records))
	for id, recs := range s.records {
		var amounts []float64
		for _, r := range recs {
			if r.Amount > 0 && window.Contains(r.Timestamp) {
				amounts = append(amounts, r.Amount)
			}
		}
		if len(amounts) == 0 || int64(len(amounts)) < f.MinTransactionCount {
			continue
		}
		stats = append(stats, model.NewEntityStatistics(
			id,
			calculate.Median(amounts),
			calculate.Average(amounts),
			int64(len(amounts)),
		))
	}

	filter.SortByRatio(stats)
	if f.Limit > 0 && len(stats) > f.Limit {
		stats = stats[:f.Limit]
	}
	return stats, nil
}

// FetchRecords returns the merchant's positive-amount records inside the
// window ordered by time, the same population FetchAggregates summarizes
func (s *Store) FetchRecords(ctx context.Context, entityID string, window model.Window) ([]model.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.TransactionRecord
	for _, r := range s.records[entityID] {
		if r.Amount > 0 && window.Contains(r.Timestamp) {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil, model.NewDataSourceError(sourceName, model.KindNotFound,
			fmt.Errorf("no records for %s", entityID))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}
