package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AnalysisMetrics records per-operation counters and latency for the analytic
// endpoints (search, labeling, drift, anomaly).
type AnalysisMetrics interface {
	RecordRequest(ctx context.Context, operation, status string)
	RecordDuration(ctx context.Context, operation string, duration time.Duration)
}

type analysisMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

// NewAnalysisMetrics creates AnalysisMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewAnalysisMetrics(meter metric.Meter) (AnalysisMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	requests, err := meter.Int64Counter(
		MetricNameAnalysisRequests,
		metric.WithDescription("Total analytic operation requests by operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis requests counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		MetricNameAnalysisRequestDuration,
		metric.WithDescription("Analytic operation duration (seconds)"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis duration histogram: %w", err)
	}

	return &analysisMetrics{requests: requests, duration: duration}, nil
}

func attrOperation(operation string) attribute.KeyValue {
	return attribute.String(AttrOperation, NormalizeReason(operation, AllowedAnalysisOperations))
}

func (a *analysisMetrics) RecordRequest(ctx context.Context, operation, status string) {
	a.requests.Add(ctx, 1, metric.WithAttributes(
		attrOperation(operation),
		attribute.String(AttrStatus, status),
	))
}

func (a *analysisMetrics) RecordDuration(ctx context.Context, operation string, duration time.Duration) {
	a.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrOperation(operation)))
}
