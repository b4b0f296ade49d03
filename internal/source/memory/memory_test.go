package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MerchantScope/internal/model"
)

var end = time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

func tx(id, entity string, amount float64, daysAgo int) model.TransactionRecord {
	return model.TransactionRecord{
		TransactionID: id,
		EntityID:      entity,
		Amount:        amount,
		Currency:      "USD",
		Timestamp:     end.AddDate(0, 0, -daysAgo),
	}
}

func TestFetchAggregates(t *testing.T) {
	s := New(
		tx("a1", "A", 150, 1), tx("a2", "A", 150, 2), tx("a3", "A", 10, 3),
		tx("b1", "B", 100, 1), tx("b2", "B", 100, 2),
		tx("c1", "C", -5, 1), // non-positive amounts are ignored
		tx("d1", "D", 100, 60), // outside the window
	)

	stats, err := s.FetchAggregates(context.Background(), model.WindowEndingAt(end, 30), model.StatsFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "A", stats[0].EntityID)
	assert.Equal(t, int64(3), stats[0].TransactionCount)
	assert.InDelta(t, 150/(310.0/3), stats[0].Ratio, 1e-9)
	assert.Equal(t, "B", stats[1].EntityID)
}

func TestFetchAggregatesFilter(t *testing.T) {
	s := New(tx("a1", "A", 1, 1), tx("b1", "B", 1, 1), tx("b2", "B", 2, 1))

	stats, err := s.FetchAggregates(context.Background(), model.WindowEndingAt(end, 30),
		model.StatsFilter{MinTransactionCount: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "B", stats[0].EntityID)
}

func TestFetchRecords(t *testing.T) {
	s := New(tx("a2", "A", 2, 1), tx("a1", "A", 1, 2))

	recs, err := s.FetchRecords(context.Background(), "A", model.WindowEndingAt(end, 7))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a1", recs[0].TransactionID)

	_, err = s.FetchRecords(context.Background(), "missing", model.WindowEndingAt(end, 7))
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestFetchRecordsSkipsRefunds(t *testing.T) {
	s := New(
		tx("a1", "A", 100, 1), tx("a2", "A", 100, 2), tx("a3", "A", -400, 3), tx("a4", "A", 0, 4),
		tx("r1", "R", -20, 1),
	)
	window := model.WindowEndingAt(end, 7)

	stats, err := s.FetchAggregates(context.Background(), window, model.StatsFilter{})
	require.NoError(t, err)
	require.Len(t, stats, 1)

	recs, err := s.FetchRecords(context.Background(), "A", window)
	require.NoError(t, err)
	assert.Len(t, recs, int(stats[0].TransactionCount))

	_, err = s.FetchRecords(context.Background(), "R", window)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	body := `[{"transaction_id":"t1","entity_id":"A","amount":12.5,"currency":"EUR","timestamp":"2024-03-30T10:00:00Z","payment_method":"card","status":"succeeded"}]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)

	recs, err := s.FetchRecords(context.Background(), "A", model.WindowEndingAt(end, 7))
	require.NoError(t, err)
	assert.Equal(t, 12.5, recs[0].Amount)
	assert.Equal(t, "card", recs[0].PaymentMethod)
}
