package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// StatisticsCalculator is the narrow contract for computing experiment results.
// The in-process engine implements it; an external computation service can too.
type StatisticsCalculator interface {
	CalculateStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error)
	DetectWinner(ctx context.Context, experimentID string) (*domain.Winner, error)
}
