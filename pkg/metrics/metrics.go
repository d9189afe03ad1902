// Package metrics provides the centralized Prometheus metrics reference for
// the quality export pipeline. All metrics are defined in their respective
// packages (client, export) to maintain modularity and avoid circular
// dependencies.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the pipeline.
// All metrics are automatically registered via promauto in their packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - quality_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - quality_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - quality_api_errors_total{kind} (Counter): Errors by kind (secret, network, status, decode)
//
// Export Metrics (pkg/export):
//   - quality_export_pages_total{endpoint} (Counter): Pages fetched by endpoint
//   - quality_export_entities_total{endpoint} (Counter): Root entities processed by endpoint
//   - quality_export_records_total{endpoint} (Counter): Flat records written by endpoint
//   - quality_export_files_total (Counter): Output files written
//
// Example Prometheus Queries:
//
//   # Records per page ratio
//   rate(quality_export_records_total[5m]) / rate(quality_export_pages_total[5m])
//
//   # Request Error Rate
//   rate(quality_api_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(quality_api_request_duration_seconds_bucket[5m]))
