package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Alias1177/MerchantScope/internal/model"
)

// Client is a wrapper for HTTP client with rate limiting. Failures are
// returned as *model.DataSourceError so the caller's retry policy can
// tell transient errors from permanent ones.
type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Source     string
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	Source         string
	Timeout        time.Duration
	RequestsPerSec int
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	// Set default values if not provided
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.Source == "" {
		opts.Source = "http"
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
		Limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		Source:  opts.Source,
	}
}

// DoRequest performs an HTTP request with rate limiting. Only 2xx
// responses are returned; the caller must close the body.
func (c *Client) DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, model.NewDataSourceError(c.Source, model.KindRateLimit, err)
	}

	resp, err := c.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, model.NewDataSourceError(c.Source, model.KindTimeout, err)
		}
		return nil, model.NewDataSourceError(c.Source, model.KindConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		statusErr := &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		return nil, model.NewDataSourceError(c.Source, ClassifyStatus(resp.StatusCode), statusErr)
	}

	return resp, nil
}

// GetJSON issues a GET request and decodes the JSON response into out
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.NewDataSourceError(c.Source, model.KindInternal, fmt.Errorf("creating request: %w", err))
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.DoRequest(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.NewDataSourceError(c.Source, model.KindQuery, fmt.Errorf("parsing JSON: %w", err))
	}
	return nil
}

// ClassifyStatus maps an HTTP status code to an error kind
func ClassifyStatus(code int) model.ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.KindAuth
	case code == http.StatusNotFound:
		return model.KindNotFound
	case code == http.StatusTooManyRequests:
		return model.KindRateLimit
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return model.KindTimeout
	case code >= 500:
		return model.KindConnection
	default:
		return model.KindQuery
	}
}

// HTTPStatusError represents an error due to a non-2xx HTTP status code
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("unexpected status %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}
