// Package observability provides OpenTelemetry metrics and the logging
// handler for the ledgerlens API.
package observability

// Metric names (OpenTelemetry).
const (
	MetricNameCacheHits               = "ledgerlens_cache_hits_total"
	MetricNameCacheMisses             = "ledgerlens_cache_misses_total"
	MetricNameEmbeddingJobsEnqueued   = "ledgerlens_embedding_jobs_enqueued_total"
	MetricNameEmbeddingProviderErrors = "ledgerlens_embedding_provider_errors_total"
	MetricNameEmbeddingOutcomes       = "ledgerlens_embedding_outcomes_total"
	MetricNameEmbeddingDuration       = "ledgerlens_embedding_duration_seconds"
	MetricNameAnalysisRequests        = "ledgerlens_analysis_requests_total"
	MetricNameAnalysisRequestDuration = "ledgerlens_analysis_request_duration_seconds"
)

// Attribute keys.
const (
	AttrCache     = "cache"
	AttrReason    = "reason"
	AttrStatus    = "status"
	AttrOperation = "operation"
)

// AllowedCacheNames for ledgerlens_cache_hits_total / _misses_total.
var AllowedCacheNames = map[string]bool{
	"query_embedding": true,
}

// AllowedEmbeddingProviderReasons for ledgerlens_embedding_provider_errors_total.
var AllowedEmbeddingProviderReasons = map[string]bool{
	"rate_limited":   true,
	"unavailable":    true,
	"enqueue_failed": true,
}

// AllowedEmbeddingStatuses for ledgerlens_embedding_outcomes_total and
// ledgerlens_embedding_duration_seconds.
var AllowedEmbeddingStatuses = map[string]bool{
	"success": true,
	"retry":   true,
	"failed":  true,
}

// AllowedAnalysisOperations for ledgerlens_analysis_requests_total.
var AllowedAnalysisOperations = map[string]bool{
	"semantic_search":    true,
	"similar":            true,
	"label_assignment":   true,
	"new_counterparties": true,
	"amount_anomalies":   true,
}

// NormalizeCacheName returns name if allowed, otherwise "other".
func NormalizeCacheName(name string) string {
	if AllowedCacheNames[name] {
		return name
	}

	return "other"
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}
