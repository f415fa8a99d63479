package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

type Metrics interface {
	RecordCommand(ctx context.Context, command string, duration time.Duration, err error)
	RecordQuotaDenial(ctx context.Context, scope string)
	RecordSearch(ctx context.Context, duration time.Duration, results int)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
}

type PrometheusMetrics struct {
	commandDuration    metric.Float64Histogram
	commandsTotal      metric.Int64Counter
	commandErrorsTotal metric.Int64Counter

	quotaDenialsTotal metric.Int64Counter

	searchDuration     metric.Float64Histogram
	searchResultsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter
}

func NewPrometheusMetrics(
	commandDuration metric.Float64Histogram,
	commandsTotal metric.Int64Counter,
	commandErrorsTotal metric.Int64Counter,
	quotaDenialsTotal metric.Int64Counter,
	searchDuration metric.Float64Histogram,
	searchResultsTotal metric.Int64Counter,
	llmDuration metric.Float64Histogram,
	llmInputTokens metric.Int64Counter,
	llmOutputTokens metric.Int64Counter,
	llmErrorsTotal metric.Int64Counter,
) *PrometheusMetrics {
	return &PrometheusMetrics{
		commandDuration:    commandDuration,
		commandsTotal:      commandsTotal,
		commandErrorsTotal: commandErrorsTotal,
		quotaDenialsTotal:  quotaDenialsTotal,
		searchDuration:     searchDuration,
		searchResultsTotal: searchResultsTotal,
		llmDuration:        llmDuration,
		llmInputTokens:     llmInputTokens,
		llmOutputTokens:    llmOutputTokens,
		llmErrorsTotal:     llmErrorsTotal,
	}
}

func (m *PrometheusMetrics) RecordCommand(ctx context.Context, command string, duration time.Duration, err error) {
	if m == nil || m.commandDuration == nil || m.commandsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("command", command),
	}

	m.commandDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.commandsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.commandErrorsTotal != nil {
		m.commandErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordQuotaDenial(ctx context.Context, scope string) {
	if m == nil || m.quotaDenialsTotal == nil {
		return
	}

	m.quotaDenialsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
	))
}

func (m *PrometheusMetrics) RecordSearch(ctx context.Context, duration time.Duration, results int) {
	if m == nil || m.searchDuration == nil || m.searchResultsTotal == nil {
		return
	}

	m.searchDuration.Record(ctx, duration.Seconds())
	m.searchResultsTotal.Add(ctx, int64(results))
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return globalMetrics
}
