package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MerchantScope/internal/model"
)

var end = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	ctx := context.Background()
	db, err := NewSQLite(ctx, "file::memory:?_time_format=sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.EnsureSchema(ctx))
	return db
}

func tx(id, entity string, amount float64, daysAgo int) model.TransactionRecord {
	return model.TransactionRecord{
		TransactionID: id,
		EntityID:      entity,
		Amount:        amount,
		Currency:      "USD",
		Timestamp:     end.Add(-time.Duration(daysAgo) * 24 * time.Hour).Add(time.Hour),
		PaymentMethod: "card",
		Status:        "succeeded",
	}
}

func TestFetchAggregates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{
		tx("a1", "A", 90, 1), tx("a2", "A", 92, 2), tx("a3", "A", 95, 3), tx("a4", "A", 500, 4),
		tx("b1", "B", 100, 1), tx("b2", "B", 300, 2), tx("b3", "B", 200, 3),
		tx("c1", "C", 50, 1), tx("c2", "C", -50, 2), // refunds are ignored
		tx("d1", "D", 70, 45), // outside the window
	}))

	stats, err := db.FetchAggregates(ctx, model.WindowEndingAt(end, 30), model.StatsFilter{MinTransactionCount: 1})
	require.NoError(t, err)
	require.Len(t, stats, 3)

	byID := make(map[string]model.EntityStatistics)
	for _, s := range stats {
		byID[s.EntityID] = s
	}

	assert.InDelta(t, 93.5, byID["A"].MedianAmount, 1e-9)
	assert.InDelta(t, 194.25, byID["A"].AverageAmount, 1e-9)
	assert.Equal(t, int64(4), byID["A"].TransactionCount)

	assert.InDelta(t, 200, byID["B"].MedianAmount, 1e-9)
	assert.InDelta(t, 1.0, byID["B"].Ratio, 1e-9)

	assert.Equal(t, int64(1), byID["C"].TransactionCount)
	assert.InDelta(t, 50, byID["C"].MedianAmount, 1e-9)
	assert.NotContains(t, byID, "D")
}

func TestFetchAggregatesFilterAndLimit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{
		tx("a1", "A", 10, 1), tx("a2", "A", 10, 2), tx("a3", "A", 1, 3),
		tx("b1", "B", 10, 1), tx("b2", "B", 10, 2),
		tx("c1", "C", 10, 1),
	}))

	stats, err := db.FetchAggregates(ctx, model.WindowEndingAt(end, 30), model.StatsFilter{MinTransactionCount: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "A", stats[0].EntityID)
}

func TestFetchRecords(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	late := tx("a2", "A", 20, 1)
	late.PaymentMethod = ""
	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{
		late, tx("a1", "A", 10, 2), tx("a0", "A", 5, 20), tx("b1", "B", 1, 1),
	}))

	recs, err := db.FetchRecords(ctx, "A", model.WindowEndingAt(end, 7))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a1", recs[0].TransactionID)
	assert.Equal(t, "a2", recs[1].TransactionID)
	assert.Equal(t, 20.0, recs[1].Amount)
	assert.True(t, recs[0].Timestamp.Equal(end.Add(-47*time.Hour)))

	recs, err = db.FetchRecords(ctx, "missing", model.WindowEndingAt(end, 7))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFetchRecordsMatchesAggregatePopulation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{
		tx("a1", "A", 100, 1), tx("a2", "A", 100, 2), tx("a3", "A", 100, 3),
		tx("a4", "A", 100, 4), tx("a5", "A", 100, 5),
		tx("a6", "A", -400, 6), tx("a7", "A", 0, 7),
	}))
	window := model.WindowEndingAt(end, 30)

	stats, err := db.FetchAggregates(ctx, window, model.StatsFilter{MinTransactionCount: 1})
	require.NoError(t, err)
	require.Len(t, stats, 1)

	recs, err := db.FetchRecords(ctx, "A", window)
	require.NoError(t, err)
	assert.Len(t, recs, int(stats[0].TransactionCount))
	for _, r := range recs {
		assert.Positive(t, r.Amount, r.TransactionID)
	}
}

func TestInsertRecordsUpserts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{tx("a1", "A", 10, 1)}))
	require.NoError(t, db.InsertRecords(ctx, []model.TransactionRecord{tx("a1", "A", 25, 1)}))

	recs, err := db.FetchRecords(ctx, "A", model.WindowEndingAt(end, 7))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 25.0, recs[0].Amount)
}

func TestQueryErrorIsClassified(t *testing.T) {
	db := newTestDB(t)
	db.queries.Records = "SELECT * FROM missing_table WHERE a = ? AND b = ? AND c = ?"

	_, err := db.FetchRecords(context.Background(), "A", model.WindowEndingAt(end, 7))
	require.Error(t, err)
	assert.Equal(t, model.KindQuery, model.KindOf(err))
}

func TestCancelledContext(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.FetchAggregates(ctx, model.WindowEndingAt(end, 30), model.StatsFilter{})
	require.Error(t, err)
	assert.Equal(t, model.KindCancelled, model.KindOf(err))
}

func TestClassifyPostgresErrors(t *testing.T) {
	tests := []struct {
		code pq.ErrorCode
		want model.ErrorKind
	}{
		{"28P01", model.KindAuth},
		{"08006", model.KindConnection},
		{"53300", model.KindConnection},
		{"57014", model.KindTimeout},
		{"57P01", model.KindConnection},
		{"42P01", model.KindQuery},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := classify(&pq.Error{Code: tt.code, Message: "boom"})
			assert.Equal(t, tt.want, model.KindOf(err))
		})
	}

	assert.Nil(t, classify(nil))
	assert.True(t, errors.Is(classify(context.DeadlineExceeded), context.DeadlineExceeded))
}

func TestDSN(t *testing.T) {
	p := ConnectionParams{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "tx", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=tx sslmode=disable", p.DSN())
}
