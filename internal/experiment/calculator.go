package experiment

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// Calculator is the in-process ports.StatisticsCalculator.
type Calculator struct {
	engine    *Engine
	decisions *DecisionPolicy
}

func NewCalculator(engine *Engine, decisions *DecisionPolicy) *Calculator {
	return &Calculator{engine: engine, decisions: decisions}
}

// CalculateStatistics recomputes and stores the experiment's snapshot.
func (c *Calculator) CalculateStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error) {
	return c.engine.RefreshStatistics(ctx, experimentID)
}

func (c *Calculator) DetectWinner(ctx context.Context, experimentID string) (*domain.Winner, error) {
	return c.decisions.DetectWinner(ctx, experimentID)
}
