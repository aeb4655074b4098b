package otel

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// NoOpExporter is a metrics exporter that does nothing.
type NoOpExporter struct{}

// NewNoOpExporter creates a new no-op exporter for graceful degradation.
func NewNoOpExporter() *NoOpExporter {
	return &NoOpExporter{}
}

func (e *NoOpExporter) RecordAssignment(ctx context.Context, experimentID, variant string, created bool) {}

func (e *NoOpExporter) RecordEvent(ctx context.Context, experimentID, variant, eventType string, value float64) {
}

func (e *NoOpExporter) RecordStatistics(ctx context.Context, s *domain.ExperimentStatistics) {}

func (e *NoOpExporter) Close(ctx context.Context) error {
	return nil
}
