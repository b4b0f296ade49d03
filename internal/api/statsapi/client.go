package statsapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/MerchantScope/internal/model"
	httpClient "github.com/Alias1177/MerchantScope/internal/platform/http"
)

const sourceName = "statsapi"

// Client reads merchant aggregates and transactions from the analytics API.
// It implements both model.StatisticsSource and model.DetailSource.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpClient.Client
	logger     zerolog.Logger
}

// ClientOptions holds options for creating a new analytics API client
type ClientOptions struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	RequestsPerSec int
}

// NewClient creates a new analytics API client
func NewClient(options ClientOptions) *Client {
	httpOpts := httpClient.ClientOptions{
		Source:         sourceName,
		Timeout:        options.RequestTimeout,
		RequestsPerSec: options.RequestsPerSec,
	}

	// Apply defaults if not set
	if httpOpts.Timeout == 0 {
		httpOpts.Timeout = 30 * time.Second
	}
	if httpOpts.RequestsPerSec == 0 {
		httpOpts.RequestsPerSec = 5
	}

	return &Client{
		apiKey:     options.APIKey,
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		httpClient: httpClient.NewClient(httpOpts),
		logger:     log.With().Str("component", "statsapi_client").Logger(),
	}
}

type statisticsResponse struct {
	Data []statisticsRow `json:"data"`
}

type statisticsRow struct {
	EntityID         string  `json:"entity_id"`
	MedianAmount     float64 `json:"median_amount"`
	AverageAmount    float64 `json:"average_amount"`
	TransactionCount int64   `json:"transaction_count"`
}

type transactionsResponse struct {
	Data []model.TransactionRecord `json:"data"`
}

// FetchAggregates fetches per-merchant aggregates for the window
func (c *Client) FetchAggregates(ctx context.Context, window model.Window, f model.StatsFilter) ([]model.EntityStatistics, error) {
	q := windowQuery(window)
	if f.MinTransactionCount > 0 {
		q.Set("min_count", strconv.FormatInt(f.MinTransactionCount, 10))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	endpoint := fmt.Sprintf("%s/v1/statistics?%s", c.baseURL, q.Encode())

	c.logger.Debug().Str("url", endpoint).Msg("Fetching merchant statistics")

	var data statisticsResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, c.header(), &data); err != nil {
		return nil, fmt.Errorf("fetching statistics: %w", err)
	}

	// the ratio is always derived locally
	stats := make([]model.EntityStatistics, 0, len(data.Data))
	for _, row := range data.Data {
		if row.EntityID == "" {
			c.logger.Warn().Msg("Dropping statistics row without entity id")
			continue
		}
		stats = append(stats, model.NewEntityStatistics(row.EntityID, row.MedianAmount, row.AverageAmount, row.TransactionCount))
	}

	c.logger.Debug().Int("count", len(stats)).Msg("Fetched merchant statistics")
	return stats, nil
}

// FetchRecords fetches a merchant's transactions inside the window, oldest first
func (c *Client) FetchRecords(ctx context.Context, entityID string, window model.Window) ([]model.TransactionRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/entities/%s/transactions?%s",
		c.baseURL, url.PathEscape(entityID), windowQuery(window).Encode())

	c.logger.Debug().Str("entity_id", entityID).Msg("Fetching merchant transactions")

	var data transactionsResponse
	if err := c.httpClient.GetJSON(ctx, endpoint, c.header(), &data); err != nil {
		return nil, fmt.Errorf("fetching transactions of %s: %w", entityID, err)
	}

	records := make([]model.TransactionRecord, 0, len(data.Data))
	for _, r := range data.Data {
		if r.Amount <= 0 {
			continue
		}
		if r.EntityID == "" {
			r.EntityID = entityID
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	return records, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	return h
}

func windowQuery(w model.Window) url.Values {
	q := url.Values{}
	q.Set("start", w.Start.UTC().Format(time.RFC3339))
	q.Set("end", w.End.UTC().Format(time.RFC3339))
	return q
}
