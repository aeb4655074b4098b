package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/stats"
)

// Rebalance is the outcome of an adaptive allocation pass.
type Rebalance struct {
	ExperimentID string
	Rates        map[string]float64
	Previous     domain.TrafficSplit
	Proposed     domain.TrafficSplit
	Applied      bool
}

// Allocator shifts traffic toward better-converting arms.
type Allocator struct {
	registry *Registry
	engine   *Engine
	logger   *slog.Logger
}

func NewAllocator(registry *Registry, engine *Engine, opts Options) *Allocator {
	opts = opts.withDefaults()
	return &Allocator{registry: registry, engine: engine, logger: opts.Logger}
}

// RebalanceTraffic proposes a split proportional to each arm's conversion rate
// from the latest snapshot, computing one when none is stored. With apply set
// the split is written; that requires a running or paused experiment.
// Existing assignments are never moved.
func (a *Allocator) RebalanceTraffic(ctx context.Context, experimentID string, apply bool) (*Rebalance, error) {
	exp, err := a.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if apply && exp.Status != domain.StatusRunning && exp.Status != domain.StatusPaused {
		return nil, &domain.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot rebalance a %s experiment", exp.Status),
			Err:     domain.ErrNotRunning,
		}
	}

	snapshot, err := a.engine.LatestStatistics(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		if snapshot, err = a.engine.RefreshStatistics(ctx, exp.ID); err != nil {
			return nil, err
		}
	}

	rates := make(map[string]float64, len(exp.TrafficSplit))
	for _, name := range exp.TrafficSplit.Variants() {
		if row := snapshot.Variant(name); row != nil {
			rates[name] = row.ConversionRate
		} else {
			rates[name] = 0
		}
	}

	r := &Rebalance{
		ExperimentID: exp.ID,
		Rates:        rates,
		Previous:     exp.TrafficSplit,
		Proposed:     stats.Allocate(rates, stats.MinAllocation, stats.MaxAllocation),
	}
	if !apply {
		return r, nil
	}

	if err := a.registry.applySplit(ctx, exp, r.Proposed); err != nil {
		return nil, err
	}
	r.Applied = true
	return r, nil
}
