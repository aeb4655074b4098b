package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// StatisticsRepository stores the latest derived snapshot per variant.
// The table is safe to truncate; the engine rebuilds it on demand.
type StatisticsRepository interface {
	Replace(ctx context.Context, experimentID string, rows []domain.VariantStatistics) error
	ListByExperiment(ctx context.Context, experimentID string) ([]domain.VariantStatistics, error)
	DeleteByExperiment(ctx context.Context, experimentID string) error
}
