package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alias1177/MerchantScope/internal/model"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want model.ErrorKind
	}{
		{http.StatusBadRequest, model.KindQuery},
		{http.StatusUnauthorized, model.KindAuth},
		{http.StatusForbidden, model.KindAuth},
		{http.StatusNotFound, model.KindNotFound},
		{http.StatusTooManyRequests, model.KindRateLimit},
		{http.StatusGatewayTimeout, model.KindTimeout},
		{http.StatusInternalServerError, model.KindConnection},
		{http.StatusServiceUnavailable, model.KindConnection},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.code))
		})
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"value":42}`))
		case "/broken":
			_, _ = w.Write([]byte(`{"value":`))
		default:
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Source: "test", RequestsPerSec: 100})
	header := http.Header{"Authorization": []string{"Bearer key"}}

	var out struct {
		Value int `json:"value"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL+"/ok", header, &out))
	assert.Equal(t, 42, out.Value)

	err := c.GetJSON(context.Background(), srv.URL+"/broken", nil, &out)
	assert.Equal(t, model.KindQuery, model.KindOf(err))

	err = c.GetJSON(context.Background(), srv.URL+"/limited", nil, &out)
	assert.Equal(t, model.KindRateLimit, model.KindOf(err))
	assert.True(t, model.IsRetriable(err))

	var statusErr *HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "slow down")
}

func TestDoRequestConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(ClientOptions{Source: "test"})
	var out map[string]any
	err := c.GetJSON(context.Background(), url, nil, &out)
	assert.Equal(t, model.KindConnection, model.KindOf(err))
}

func TestDoRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(ClientOptions{Source: "test"})
	var out map[string]any
	err := c.GetJSON(ctx, "http://127.0.0.1:1", nil, &out)
	assert.Equal(t, model.KindCancelled, model.KindOf(err))
}
