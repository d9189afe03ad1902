// Package client provides the authenticated HTTP client for the quality API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/secrets"
)

// Prometheus metrics for quality API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_api_requests_total",
		Help: "Total quality API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quality_api_request_duration_seconds",
		Help:    "Quality API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_api_errors_total",
		Help: "Total quality API errors by kind",
	}, []string{"kind"})
)

// maxErrorBodyBytes bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBodyBytes = 4096

// Client is the authenticated quality API client. Any non-2xx response is
// fatal for the run: there is no retry or backoff at this layer.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     secrets.Provider
	userAgent  string
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the quality API, e.g. "https://api.example.com".
	BaseURL string

	// Tokens supplies the bearer token for the Authorization header.
	Tokens secrets.Provider

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout per request (default: 30s).
	Timeout time.Duration
}

// New creates a new quality API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "quality-client").Logger()

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		tokens:    cfg.Tokens,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

// Get performs an authenticated GET against an endpoint path with the given
// query parameters. The caller owns the response body on success.
func (c *Client) Get(ctx context.Context, endpoint string, query url.Values) (*http.Response, error) {
	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Token retrieval failed")
		apiErrorsTotal.WithLabelValues("secret").Inc()
		return nil, err
	}

	requestURL := c.baseURL + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Msg("Executing quality API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		apiErrorsTotal.WithLabelValues("network").Inc()
		apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, &APIError{Endpoint: endpoint, Err: err}
	}

	apiRequestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		resp.Body.Close()

		apiErrorsTotal.WithLabelValues("status").Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Quality API request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Body:       string(body),
		}
	}

	return resp, nil
}

// GetJSON performs a GET and decodes the JSON body into v. A malformed body
// is reported as an *APIError, the same class as a non-2xx status.
func (c *Client) GetJSON(ctx context.Context, endpoint string, query url.Values, v any) error {
	resp, err := c.Get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		apiErrorsTotal.WithLabelValues("decode").Inc()
		return &APIError{
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
