package statsapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MerchantScope/internal/model"
)

var window = model.Window{
	Start: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/statistics", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("start"))
		assert.Equal(t, "2024-03-31T00:00:00Z", r.URL.Query().Get("end"))
		assert.Equal(t, "2", r.URL.Query().Get("min_count"))
		_, _ = w.Write([]byte(`{"data":[
			{"entity_id":"acct_A","median_amount":150,"average_amount":100,"transaction_count":12},
			{"entity_id":"acct_B","median_amount":10,"average_amount":0,"transaction_count":3},
			{"median_amount":1,"average_amount":1,"transaction_count":1}
		]}`))
	})
	mux.HandleFunc("/v1/entities/acct_A/transactions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[
			{"transaction_id":"t2","amount":20,"currency":"USD","timestamp":"2024-03-10T00:00:00Z"},
			{"transaction_id":"t1","amount":10,"currency":"USD","timestamp":"2024-03-05T00:00:00Z"},
			{"transaction_id":"r1","amount":-15,"currency":"USD","timestamp":"2024-03-06T00:00:00Z"}
		]}`))
	})
	mux.HandleFunc("/v1/entities/acct_down/transactions", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchAggregates(t *testing.T) {
	srv := newServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL + "/", APIKey: "secret", RequestsPerSec: 100})

	stats, err := c.FetchAggregates(context.Background(), window, model.StatsFilter{MinTransactionCount: 2})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, "acct_A", stats[0].EntityID)
	assert.True(t, stats[0].RatioDefined)
	assert.InDelta(t, 1.5, stats[0].Ratio, 1e-9)
	assert.False(t, stats[1].RatioDefined)
}

func TestFetchAggregatesUnauthorized(t *testing.T) {
	srv := newServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "wrong", RequestsPerSec: 100})

	_, err := c.FetchAggregates(context.Background(), window, model.StatsFilter{MinTransactionCount: 2})
	require.Error(t, err)
	assert.Equal(t, model.KindAuth, model.KindOf(err))
	assert.False(t, model.IsRetriable(err))
}

func TestFetchRecords(t *testing.T) {
	srv := newServer(t)
	c := NewClient(ClientOptions{BaseURL: srv.URL, APIKey: "secret", RequestsPerSec: 100})

	recs, err := c.FetchRecords(context.Background(), "acct_A", window)
	require.NoError(t, err)
	require.Len(t, recs, 2, "refund r1 is dropped")
	assert.Equal(t, "t1", recs[0].TransactionID)
	assert.Equal(t, "acct_A", recs[0].EntityID)

	_, err = c.FetchRecords(context.Background(), "acct_missing", window)
	assert.Equal(t, model.KindNotFound, model.KindOf(err))

	_, err = c.FetchRecords(context.Background(), "acct_down", window)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
	assert.True(t, model.IsRetriable(err))
}
