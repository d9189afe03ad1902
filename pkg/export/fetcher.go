package export

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/client"
)

// DefaultPageSize is the page size requested from list endpoints.
const DefaultPageSize = 100

// Quality API endpoints walked by the pipeline.
const (
	formsEndpoint             = "/api/v2/quality/publishedforms"
	formDetailEndpoint        = "/api/v2/quality/forms"
	evaluatorActivityEndpoint = "/api/v2/quality/evaluators/activity"
	evaluationsQueryEndpoint  = "/api/v2/quality/evaluations/query"
)

// Filters are the caller-supplied query filters for a list endpoint. Zero
// values are omitted from the request.
type Filters struct {
	StartTime       time.Time
	EndTime         time.Time
	EvaluatorUserID string
	Expand          string
}

// query builds the full query string for one page request.
func (f Filters) query(pageSize, pageNumber int) url.Values {
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	if !f.StartTime.IsZero() {
		q.Set("startTime", f.StartTime.UTC().Format(time.RFC3339))
	}
	if !f.EndTime.IsZero() {
		q.Set("endTime", f.EndTime.UTC().Format(time.RFC3339))
	}
	if f.EvaluatorUserID != "" {
		q.Set("evaluatorUserId", f.EvaluatorUserID)
	}
	if f.Expand != "" {
		q.Set("expand", f.Expand)
	}
	return q
}

// page is the wire shape of one list response.
type page struct {
	Entities []map[string]any `json:"entities"`
}

// PageFetcher issues one authenticated GET per page and decodes the entity
// list. An absent or empty entities field marks the terminal page.
type PageFetcher struct {
	client   *client.Client
	pageSize int
	logger   zerolog.Logger
}

// NewPageFetcher creates a fetcher with the given page size (0 uses
// DefaultPageSize).
func NewPageFetcher(c *client.Client, pageSize int) *PageFetcher {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PageFetcher{
		client:   c,
		pageSize: pageSize,
		logger:   log.With().Str("component", "page-fetcher").Logger(),
	}
}

// FetchPage fetches one page of entities. Errors carry the page number for
// diagnostics; the caller treats them as fatal.
func (p *PageFetcher) FetchPage(ctx context.Context, endpoint string, filters Filters, pageNumber int) ([]map[string]any, error) {
	var body page
	if err := p.client.GetJSON(ctx, endpoint, filters.query(p.pageSize, pageNumber), &body); err != nil {
		return nil, fmt.Errorf("page %d: %w", pageNumber, err)
	}

	exportPagesTotal.WithLabelValues(endpoint).Inc()
	p.logger.Debug().
		Str("endpoint", endpoint).
		Int("page", pageNumber).
		Int("entities", len(body.Entities)).
		Msg("Fetched page")

	return body.Entities, nil
}
