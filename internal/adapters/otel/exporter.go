package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/emiliopalmerini/abacus/internal/config"
	"github.com/emiliopalmerini/abacus/internal/domain"
)

const (
	serviceName    = "abacus"
	serviceVersion = "1.0.0"
)

// Exporter exports experiment activity to an OTEL Collector.
type Exporter struct {
	provider         *sdkmetric.MeterProvider
	assignmentsTotal metric.Int64Counter
	eventsTotal      metric.Int64Counter
	eventValue       metric.Float64Counter
	statisticsRuns   metric.Int64Counter
	pValueHist       metric.Float64Histogram
	probabilityBest  metric.Float64Histogram
}

// NewExporter creates an OTLP/gRPC metrics exporter.
func NewExporter(ctx context.Context, cfg config.OTel) (*Exporter, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return nil, fmt.Errorf("OTEL exporter is disabled or endpoint not configured")
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	e, err := newInstruments(provider.Meter(serviceName))
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}
	e.provider = provider
	return e, nil
}

func newInstruments(meter metric.Meter) (*Exporter, error) {
	assignmentsTotal, err := meter.Int64Counter(
		"abacus_assignments_total",
		metric.WithDescription("Variant assignments served"),
		metric.WithUnit("{assignment}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	eventsTotal, err := meter.Int64Counter(
		"abacus_events_total",
		metric.WithDescription("Tracked experiment events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating events counter: %w", err)
	}

	eventValue, err := meter.Float64Counter(
		"abacus_event_value_total",
		metric.WithDescription("Sum of tracked event values"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event value counter: %w", err)
	}

	statisticsRuns, err := meter.Int64Counter(
		"abacus_statistics_runs_total",
		metric.WithDescription("Statistics computations"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating statistics counter: %w", err)
	}

	pValueHist, err := meter.Float64Histogram(
		"abacus_variant_p_value",
		metric.WithDescription("Treatment p-values versus control"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating p-value histogram: %w", err)
	}

	probabilityBest, err := meter.Float64Histogram(
		"abacus_variant_probability_best",
		metric.WithDescription("Posterior probability of each variant being best"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating probability histogram: %w", err)
	}

	return &Exporter{
		assignmentsTotal: assignmentsTotal,
		eventsTotal:      eventsTotal,
		eventValue:       eventValue,
		statisticsRuns:   statisticsRuns,
		pValueHist:       pValueHist,
		probabilityBest:  probabilityBest,
	}, nil
}

func (e *Exporter) RecordAssignment(ctx context.Context, experimentID, variant string, created bool) {
	e.assignmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("experiment_id", experimentID),
		attribute.String("variant", variant),
		attribute.Bool("created", created),
	))
}

func (e *Exporter) RecordEvent(ctx context.Context, experimentID, variant, eventType string, value float64) {
	opt := metric.WithAttributes(
		attribute.String("experiment_id", experimentID),
		attribute.String("variant", variant),
		attribute.String("event_type", eventType),
	)
	e.eventsTotal.Add(ctx, 1, opt)
	if value >= 0 {
		e.eventValue.Add(ctx, value, opt)
	}
}

func (e *Exporter) RecordStatistics(ctx context.Context, s *domain.ExperimentStatistics) {
	e.statisticsRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("experiment_id", s.ExperimentID)))
	for _, v := range s.Variants {
		opt := metric.WithAttributes(
			attribute.String("experiment_id", s.ExperimentID),
			attribute.String("variant", v.Variant),
		)
		if v.PValue != nil {
			e.pValueHist.Record(ctx, *v.PValue, opt)
		}
		if v.HasData {
			e.probabilityBest.Record(ctx, v.ProbabilityBest, opt)
		}
	}
}

// Close shuts down the exporter and flushes any pending metrics.
func (e *Exporter) Close(ctx context.Context) error {
	if e.provider == nil {
		return nil
	}
	return e.provider.Shutdown(ctx)
}
