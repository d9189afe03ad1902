package export

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/client"
	"github.com/knowthefacts/quality-export/pkg/flatten"
	"github.com/knowthefacts/quality-export/pkg/storage"
)

// Prometheus metrics for export operations.
var (
	exportPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_export_pages_total",
		Help: "Total pages fetched by endpoint",
	}, []string{"endpoint"})

	exportEntitiesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_export_entities_total",
		Help: "Total root entities processed by endpoint",
	}, []string{"endpoint"})

	exportRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quality_export_records_total",
		Help: "Total flat records written by endpoint",
	}, []string{"endpoint"})

	exportFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quality_export_files_total",
		Help: "Total output files written",
	})
)

// DetailPolicy selects how form detail is obtained.
type DetailPolicy int

const (
	// DetailInline uses the list entity as-is (the list request carries
	// expand=questionGroups).
	DetailInline DetailPolicy = iota

	// DetailRequest performs a second GET per form against the detail
	// endpoint to obtain the nested question groups.
	DetailRequest
)

// NestedPolicy selects what happens to a form's question groups.
type NestedPolicy int

const (
	// NestedExpand flattens question groups into one
	// questiongroups_{formId}.jsonl file per form.
	NestedExpand NestedPolicy = iota

	// NestedEmbed carries the raw questionGroups value on the form summary
	// record instead of expanding it; no per-form file is written.
	NestedEmbed
)

// FormOptions names the traversal policies for the form export.
type FormOptions struct {
	Detail DetailPolicy
	Nested NestedPolicy
}

// Options holds exporter configuration.
type Options struct {
	// PageSize per list request (default: DefaultPageSize).
	PageSize int

	// MaxPages is an optional safety cap on pages per endpoint walk.
	// 0 means no cap: pagination runs until the terminal empty page.
	MaxPages int

	// Concurrency bounds per-entity fan-out within one page. Values <= 1
	// process entities sequentially. Pages are always fetched sequentially.
	Concurrency int
}

// entityFunc processes one root entity and returns the number of flat
// records it wrote.
type entityFunc func(ctx context.Context, entity map[string]any) (int, error)

// Exporter walks paginated endpoints and writes flattened output through a
// storage saver. One file per root entity; a failed run leaves already
// written files in place.
type Exporter struct {
	client  *client.Client
	fetcher *PageFetcher
	store   storage.Saver
	opts    Options
	logger  zerolog.Logger
}

// New creates an exporter. Every run gets a run_id for log correlation.
func New(c *client.Client, store storage.Saver, opts Options) *Exporter {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}

	logger := log.With().
		Str("component", "exporter").
		Str("run_id", uuid.NewString()).
		Logger()

	return &Exporter{
		client:  c,
		fetcher: NewPageFetcher(c, opts.PageSize),
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// exportPages drives pagination for one endpoint: fetch page N starting at
// 1, stop on the first empty page, and run handle for every entity. The
// returned count is the number of records written before success or failure.
func (e *Exporter) exportPages(ctx context.Context, endpoint string, filters Filters, handle entityFunc) (int, error) {
	total := 0
	for pageNumber := 1; ; pageNumber++ {
		if e.opts.MaxPages > 0 && pageNumber > e.opts.MaxPages {
			return total, fmt.Errorf("page cap exceeded (endpoint %s, cap %d)", endpoint, e.opts.MaxPages)
		}

		entities, err := e.fetcher.FetchPage(ctx, endpoint, filters, pageNumber)
		if err != nil {
			return total, err
		}
		if len(entities) == 0 {
			// Terminal page.
			e.logger.Info().
				Str("endpoint", endpoint).
				Int("pages", pageNumber-1).
				Int("records", total).
				Msg("Pagination complete")
			return total, nil
		}

		exportEntitiesTotal.WithLabelValues(endpoint).Add(float64(len(entities)))

		n, err := e.processPage(ctx, entities, handle)
		total += n
		if err != nil {
			return total, err
		}
	}
}

// processPage runs handle over the entities of one page. With Concurrency
// > 1 entities fan out across a bounded worker pool; all entities of this
// page finish before the next page is fetched. The first error wins and
// aborts the run.
func (e *Exporter) processPage(ctx context.Context, entities []map[string]any, handle entityFunc) (int, error) {
	if e.opts.Concurrency <= 1 || len(entities) == 1 {
		total := 0
		for _, entity := range entities {
			n, err := handle(ctx, entity)
			total += n
			if err != nil {
				return total, err
			}
		}
		return total, nil
	}

	workers := e.opts.Concurrency
	if workers > len(entities) {
		workers = len(entities)
	}

	queue := make(chan map[string]any)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	total := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entity := range queue {
				mu.Lock()
				aborted := firstErr != nil
				mu.Unlock()
				if aborted {
					continue
				}

				n, err := handle(ctx, entity)

				mu.Lock()
				total += n
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	for _, entity := range entities {
		queue <- entity
	}
	close(queue)
	wg.Wait()

	return total, firstErr
}

// ExportForms walks the published forms endpoint. Per form it writes the
// expanded question-group records (NestedExpand) or nothing (NestedEmbed),
// then writes one aggregate forms.jsonl with the root summaries. Returns
// the total record count including summary lines.
func (e *Exporter) ExportForms(ctx context.Context, opts FormOptions) (int, error) {
	var mu sync.Mutex
	var summaries []flatten.Record

	handle := func(ctx context.Context, entity map[string]any) (int, error) {
		formID := stringField(entity, "id")

		form := entity
		if opts.Detail == DetailRequest {
			var detail map[string]any
			if err := e.client.GetJSON(ctx, formDetailEndpoint+"/"+formID, nil, &detail); err != nil {
				return 0, fmt.Errorf("form %s: %w", formID, err)
			}
			form = detail
		}

		summary := flatten.FormSummary(form, opts.Nested == NestedEmbed)
		mu.Lock()
		summaries = append(summaries, summary)
		mu.Unlock()

		if opts.Nested == NestedEmbed {
			return 0, nil
		}

		records := flatten.Form(form)
		if len(records) == 0 {
			e.logger.Debug().Str("entity_id", formID).Msg("Form has no answer options, skipping file")
			return 0, nil
		}

		name := fmt.Sprintf("questiongroups_%s.jsonl", formID)
		location, err := e.store.Save(ctx, records, name)
		if err != nil {
			return 0, err
		}

		exportFilesTotal.Inc()
		exportRecordsTotal.WithLabelValues(formsEndpoint).Add(float64(len(records)))
		e.logger.Info().
			Str("entity_id", formID).
			Int("records", len(records)).
			Str("location", location).
			Msg("Wrote form records")

		return len(records), nil
	}

	count, err := e.exportPages(ctx, formsEndpoint, Filters{Expand: "questionGroups"}, handle)
	if err != nil {
		return count, err
	}

	if len(summaries) == 0 {
		return count, nil
	}

	// Deterministic aggregate regardless of fan-out completion order.
	sort.Slice(summaries, func(i, j int) bool {
		a := stringField(summaries[i], "id")
		b := stringField(summaries[j], "id")
		return a < b
	})

	location, err := e.store.Save(ctx, summaries, "forms.jsonl")
	if err != nil {
		return count, err
	}

	exportFilesTotal.Inc()
	exportRecordsTotal.WithLabelValues(formsEndpoint).Add(float64(len(summaries)))
	e.logger.Info().
		Int("records", len(summaries)).
		Str("location", location).
		Msg("Wrote form summaries")

	return count + len(summaries), nil
}

// stringField reads a field as a string; absent or non-string yields "".
func stringField(entity map[string]any, key string) string {
	s, _ := entity[key].(string)
	return s
}
