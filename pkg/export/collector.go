package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/knowthefacts/quality-export/pkg/flatten"
)

// Collector runs the two-stage evaluation pipeline: discover evaluators
// with completed evaluations over a time range, then export every
// evaluation of every discovered evaluator.
type Collector struct {
	exporter *Exporter
	logger   zerolog.Logger
}

// NewCollector creates a collector on top of an exporter.
func NewCollector(exporter *Exporter) *Collector {
	return &Collector{
		exporter: exporter,
		logger:   log.With().Str("component", "collector").Logger(),
	}
}

// Run executes both stages and returns the total record count. Evaluators
// are processed sequentially in discovery order. Evaluations are not
// deduplicated across evaluators: a repeated evaluation id overwrites the
// same file name, last write wins.
func (c *Collector) Run(ctx context.Context, startTime, endTime time.Time) (int, error) {
	evaluators, err := c.discoverEvaluators(ctx, startTime, endTime)
	if err != nil {
		return 0, err
	}

	c.logger.Info().
		Int("evaluators", len(evaluators)).
		Time("start", startTime).
		Time("end", endTime).
		Msg("Evaluator discovery complete")

	total := 0
	for _, evaluatorID := range evaluators {
		filters := Filters{
			StartTime:       startTime,
			EndTime:         endTime,
			EvaluatorUserID: evaluatorID,
			Expand:          "evaluation.answers",
		}

		n, err := c.exporter.exportPages(ctx, evaluationsQueryEndpoint, filters, c.exportEvaluation)
		total += n
		if err != nil {
			return total, err
		}

		c.logger.Info().
			Str("evaluator_id", evaluatorID).
			Int("records", n).
			Msg("Evaluator export complete")
	}

	return total, nil
}

// discoverEvaluators paginates the evaluator activity endpoint and collects
// the ids of evaluators with at least one completed evaluation. Duplicates
// across pages are tolerated and collapse into one entry.
func (c *Collector) discoverEvaluators(ctx context.Context, startTime, endTime time.Time) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]struct{})
	var evaluators []string

	handle := func(ctx context.Context, entity map[string]any) (int, error) {
		completed, _ := entity["numEvaluationsCompleted"].(float64)
		if completed <= 0 {
			return 0, nil
		}

		evaluator, _ := entity["evaluator"].(map[string]any)
		id := stringField(evaluator, "id")
		if id == "" {
			return 0, nil
		}

		mu.Lock()
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			evaluators = append(evaluators, id)
		}
		mu.Unlock()

		return 0, nil
	}

	filters := Filters{StartTime: startTime, EndTime: endTime}
	if _, err := c.exporter.exportPages(ctx, evaluatorActivityEndpoint, filters, handle); err != nil {
		return nil, err
	}

	return evaluators, nil
}

// exportEvaluation flattens one evaluation and writes its records under the
// composite {evaluationId}_{conversationId}.jsonl name. Evaluations with no
// question scores produce no file.
func (c *Collector) exportEvaluation(ctx context.Context, entity map[string]any) (int, error) {
	evaluationID := stringField(entity, "id")
	conversationID := stringField(entity, "conversationId")

	records := flatten.Evaluation(entity)
	if len(records) == 0 {
		c.logger.Debug().Str("entity_id", evaluationID).Msg("Evaluation has no scores, skipping file")
		return 0, nil
	}

	name := fmt.Sprintf("%s_%s.jsonl", evaluationID, conversationID)
	location, err := c.exporter.store.Save(ctx, records, name)
	if err != nil {
		return 0, err
	}

	exportFilesTotal.Inc()
	exportRecordsTotal.WithLabelValues(evaluationsQueryEndpoint).Add(float64(len(records)))
	c.logger.Info().
		Str("entity_id", evaluationID).
		Int("records", len(records)).
		Str("location", location).
		Msg("Wrote evaluation records")

	return len(records), nil
}
