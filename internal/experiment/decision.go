package experiment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// StatisticsSource produces fresh statistics for an experiment.
type StatisticsSource interface {
	ComputeStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error)
}

// DecisionPolicy decides whether an experiment has a winner or should stop.
type DecisionPolicy struct {
	registry *Registry
	source   StatisticsSource
	logger   *slog.Logger
}

func NewDecisionPolicy(registry *Registry, source StatisticsSource, opts Options) *DecisionPolicy {
	opts = opts.withDefaults()
	return &DecisionPolicy{registry: registry, source: source, logger: opts.Logger}
}

// DetectWinner returns the winning variant, or nil when no arm qualifies yet.
func (d *DecisionPolicy) DetectWinner(ctx context.Context, experimentID string) (*domain.Winner, error) {
	exp, err := d.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	s, err := d.source.ComputeStatistics(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	return PickWinner(exp, s), nil
}

// PickWinner requires every arm to reach the minimum sample size; among the
// treatments that beat the control significantly, the highest rate wins.
func PickWinner(exp *domain.Experiment, s *domain.ExperimentStatistics) *domain.Winner {
	if smallestArm(s) < exp.MinimumSampleSize {
		return nil
	}
	control := s.Variant(s.Control)
	if control == nil {
		return nil
	}

	var best *domain.VariantStatistics
	for i := range s.Variants {
		v := &s.Variants[i]
		if v.IsControl || !v.StatisticalSignificance || v.PValue == nil {
			continue
		}
		if v.ConversionRate <= control.ConversionRate {
			continue
		}
		if best == nil || v.ConversionRate > best.ConversionRate {
			best = v
		}
	}
	if best == nil {
		return nil
	}
	return &domain.Winner{
		Variant:        best.Variant,
		ConversionRate: best.ConversionRate,
		PValue:         *best.PValue,
		Confidence:     1 - *best.PValue,
	}
}

func smallestArm(s *domain.ExperimentStatistics) int64 {
	if len(s.Variants) == 0 {
		return 0
	}
	smallest := s.Variants[0].TotalUsers
	for _, v := range s.Variants[1:] {
		if v.TotalUsers < smallest {
			smallest = v.TotalUsers
		}
	}
	return smallest
}

// Evaluate recommends the next step for the experiment.
func (d *DecisionPolicy) Evaluate(ctx context.Context, experimentID string) (*domain.Decision, error) {
	exp, err := d.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	s, err := d.source.ComputeStatistics(ctx, exp.ID)
	if err != nil {
		return nil, err
	}

	dec := &domain.Decision{
		ExperimentID:      exp.ID,
		Action:            domain.DecisionContinue,
		Sequential:        s.Sequential,
		MinimumSampleSize: exp.MinimumSampleSize,
		SmallestArm:       smallestArm(s),
	}

	switch w := PickWinner(exp, s); {
	case w != nil:
		dec.Action = domain.DecisionWinner
		dec.Winner = w
		dec.Reason = fmt.Sprintf("%s beats %s with p=%.4f", w.Variant, s.Control, w.PValue)
	case s.Sequential.StopForEfficacy:
		dec.Action = domain.DecisionStopForEfficacy
		dec.Reason = fmt.Sprintf("p-value below the interim bound %.5f at %.0f%% of the planned sample",
			s.Sequential.AdjustedAlpha, 100*s.Sequential.Fraction)
	case s.Sequential.StopForFutility:
		dec.Action = domain.DecisionStopForFutility
		dec.Reason = fmt.Sprintf("no arm is trending toward significance at %.0f%% of the planned sample",
			100*s.Sequential.Fraction)
	case dec.SmallestArm < exp.MinimumSampleSize:
		dec.Reason = fmt.Sprintf("smallest arm has %d of %d required users", dec.SmallestArm, exp.MinimumSampleSize)
	default:
		dec.Reason = "no significant difference yet"
	}
	return dec, nil
}

// Conclude completes a running or paused experiment when a winner exists.
// Without a winner the experiment is returned unchanged.
func (d *DecisionPolicy) Conclude(ctx context.Context, experimentID string) (*domain.Experiment, *domain.Winner, error) {
	exp, err := d.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, nil, err
	}
	w, err := d.DetectWinner(ctx, exp.ID)
	if err != nil {
		return nil, nil, err
	}
	if w == nil {
		return exp, nil, nil
	}

	exp, err = d.registry.Complete(ctx, exp.ID, w.Variant, w.Confidence)
	if err != nil {
		return nil, nil, err
	}
	d.logger.Info("winner declared", "experiment_id", exp.ID, "variant", w.Variant, "confidence", w.Confidence)
	return exp, w, nil
}
