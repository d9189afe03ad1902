// Package export drives the paginated extraction pipeline: it walks a paged
// quality API endpoint, flattens each root entity into denormalized records,
// and writes one output file per entity through a storage saver.
//
// Pagination is 1-based and terminates on the first page whose entities list
// is empty; there is no total-count or cursor field. An API that never
// returns an empty page loops forever unless the optional MaxPages cap is
// set. Any fetch, flatten, or storage error aborts the run immediately:
// there is no retry and no resumption state, so files written before the
// failure remain on storage and a failed run needs a full re-export.
//
// Example usage:
//
//	exporter := export.New(apiClient, storage.NewLocal("./out"), export.Options{})
//	count, err := exporter.ExportForms(ctx, export.FormOptions{})
//
// The two-stage collector composes the same pagination twice: evaluator
// discovery over a time range, then per-evaluator evaluation export.
package export
