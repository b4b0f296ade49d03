package model

import "context"

// StatsFilter narrows the aggregates returned by a StatisticsSource
type StatsFilter struct {
	MinTransactionCount int64
	Limit               int // 0 means no limit
}

// StatisticsSource supplies per-merchant aggregates for a window
type StatisticsSource interface {
	FetchAggregates(ctx context.Context, window Window, filter StatsFilter) ([]EntityStatistics, error)
}

// DetailSource supplies the individual transactions of one merchant.
// A KindNotFound DataSourceError means the merchant had no records in range.
type DetailSource interface {
	FetchRecords(ctx context.Context, entityID string, window Window) ([]TransactionRecord, error)
}
