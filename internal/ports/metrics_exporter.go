package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// MetricsExporter exports engine activity to an external observability system.
type MetricsExporter interface {
	RecordAssignment(ctx context.Context, experimentID, variant string, created bool)
	RecordEvent(ctx context.Context, experimentID, variant, eventType string, value float64)
	RecordStatistics(ctx context.Context, stats *domain.ExperimentStatistics)
	// Close shuts down the exporter and flushes any pending metrics.
	Close(ctx context.Context) error
}
