package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

type EventRepository interface {
	Append(ctx context.Context, event *domain.Event) error
	ListByExperiment(ctx context.Context, experimentID string, limit int) ([]*domain.Event, error)
	// ConversionsByVariant counts distinct assigned users with at least one event of
	// eventType logged under their assigned variant, and sums those events' values.
	ConversionsByVariant(ctx context.Context, experimentID, eventType string) (map[string]domain.VariantAggregate, error)
}
