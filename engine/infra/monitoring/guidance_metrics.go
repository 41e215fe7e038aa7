package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	guidanceRequestsMetric = "vimarsh_guidance_requests_total"
	guidanceDeniedMetric   = "vimarsh_guidance_denied_total"
	inputTokensMetric      = "vimarsh_llm_input_tokens_total"
	outputTokensMetric     = "vimarsh_llm_output_tokens_total"
	costMetric             = "vimarsh_guidance_cost_usd_total"
	latencyMetric          = "vimarsh_guidance_latency_seconds"

	labelPersonality = "personality"
	labelQuality     = "quality"
	labelReason      = "reason"
)

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// GuidanceMetrics instruments the serving path. All observations carry
// the personality and outcome quality; cost is accumulated in USD.
type GuidanceMetrics struct {
	requests     metric.Int64Counter
	denied       metric.Int64Counter
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	cost         metric.Float64Counter
	latency      metric.Float64Histogram
}

func NewGuidanceMetrics(meter metric.Meter) (*GuidanceMetrics, error) {
	requests, err := meter.Int64Counter(guidanceRequestsMetric,
		metric.WithDescription("Total guidance requests served"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create counter %q: %w", guidanceRequestsMetric, err)
	}
	denied, err := meter.Int64Counter(guidanceDeniedMetric,
		metric.WithDescription("Total guidance requests denied before dispatch"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create counter %q: %w", guidanceDeniedMetric, err)
	}
	inputTokens, err := meter.Int64Counter(inputTokensMetric,
		metric.WithDescription("Total prompt tokens sent to the provider"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create counter %q: %w", inputTokensMetric, err)
	}
	outputTokens, err := meter.Int64Counter(outputTokensMetric,
		metric.WithDescription("Total completion tokens returned by the provider"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create counter %q: %w", outputTokensMetric, err)
	}
	cost, err := meter.Float64Counter(costMetric,
		metric.WithDescription("Accumulated guidance cost in USD"),
		metric.WithUnit("{USD}"))
	if err != nil {
		return nil, fmt.Errorf("create counter %q: %w", costMetric, err)
	}
	latency, err := meter.Float64Histogram(latencyMetric,
		metric.WithDescription("End-to-end guidance latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...))
	if err != nil {
		return nil, fmt.Errorf("create histogram %q: %w", latencyMetric, err)
	}
	return &GuidanceMetrics{
		requests:     requests,
		denied:       denied,
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
		cost:         cost,
		latency:      latency,
	}, nil
}

// ObserveServed records one completed guidance request.
func (m *GuidanceMetrics) ObserveServed(
	ctx context.Context,
	personality, quality string,
	inputTokens, outputTokens int,
	costUSD float64,
	elapsed time.Duration,
) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(labelPersonality, personality),
		attribute.String(labelQuality, quality),
	)
	m.requests.Add(ctx, 1, attrs)
	m.inputTokens.Add(ctx, int64(inputTokens), attrs)
	m.outputTokens.Add(ctx, int64(outputTokens), attrs)
	m.cost.Add(ctx, costUSD, attrs)
	m.latency.Record(ctx, elapsed.Seconds(), attrs)
}

// ObserveDenied records one request refused before dispatch.
func (m *GuidanceMetrics) ObserveDenied(ctx context.Context, personality, reason string) {
	if m == nil {
		return
	}
	m.denied.Add(ctx, 1, metric.WithAttributes(
		attribute.String(labelPersonality, personality),
		attribute.String(labelReason, reason),
	))
}
