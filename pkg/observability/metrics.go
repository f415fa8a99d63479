package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("telefind")

	commandDuration, err := meter.Float64Histogram(
		"telefind_command_duration_seconds",
		metric.WithDescription("Command handling duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command duration histogram: %w", err)
	}

	commandsTotal, err := meter.Int64Counter(
		"telefind_commands_total",
		metric.WithDescription("Total commands handled"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create commands counter: %w", err)
	}

	commandErrors, err := meter.Int64Counter(
		"telefind_command_errors_total",
		metric.WithDescription("Total command handling errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create command errors counter: %w", err)
	}

	quotaDenials, err := meter.Int64Counter(
		"telefind_quota_denials_total",
		metric.WithDescription("Total requests denied by rate limiting"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create quota denials counter: %w", err)
	}

	searchDuration, err := meter.Float64Histogram(
		"telefind_search_duration_seconds",
		metric.WithDescription("Archive search duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search duration histogram: %w", err)
	}

	searchResults, err := meter.Int64Counter(
		"telefind_search_results_total",
		metric.WithDescription("Total collected search results"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search results counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"telefind_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"telefind_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"telefind_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from the LLM"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"telefind_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	return NewPrometheusMetrics(
		commandDuration,
		commandsTotal,
		commandErrors,
		quotaDenials,
		searchDuration,
		searchResults,
		llmDuration,
		llmInputTokens,
		llmOutputTokens,
		llmErrors,
	), nil
}
