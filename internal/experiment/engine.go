package experiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/ports"
	"github.com/emiliopalmerini/abacus/internal/stats"
)

// Engine aggregates the assignment and event logs into per-variant statistics.
type Engine struct {
	registry    *Registry
	assignments ports.AssignmentRepository
	events      ports.EventRepository
	statistics  ports.StatisticsRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
	now         func() time.Time
	draws       int
}

func NewEngine(registry *Registry, assignments ports.AssignmentRepository, events ports.EventRepository, statistics ports.StatisticsRepository, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		registry:    registry,
		assignments: assignments,
		events:      events,
		statistics:  statistics,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
		draws:       opts.MonteCarloDraws,
	}
}

// ComputeStatistics recomputes the statistics from the logs without storing them.
func (e *Engine) ComputeStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error) {
	exp, err := e.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	var (
		users       map[string]int64
		conversions map[string]domain.VariantAggregate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = e.assignments.CountByVariant(gctx, exp.ID)
		return err
	})
	g.Go(func() error {
		var err error
		conversions, err = e.events.ConversionsByVariant(gctx, exp.ID, exp.SuccessMetric)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load experiment logs: %w", err)
	}

	aggregates := make(map[string]domain.VariantAggregate, len(exp.TrafficSplit))
	for _, v := range exp.TrafficSplit.Variants() {
		agg := conversions[v]
		agg.Variant = v
		agg.TotalUsers = users[v]
		aggregates[v] = agg
	}
	return Summarize(exp, aggregates, e.now(), e.draws)
}

// RefreshStatistics recomputes, stores and exports the latest snapshot.
func (e *Engine) RefreshStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error) {
	s, err := e.ComputeStatistics(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if err := e.statistics.Replace(ctx, s.ExperimentID, s.Variants); err != nil {
		return nil, err
	}
	e.metrics.RecordStatistics(ctx, s)
	e.logger.Debug("statistics refreshed",
		"experiment_id", s.ExperimentID,
		"observed", s.Sequential.ObservedUsers,
		"fraction", s.Sequential.Fraction,
	)
	return s, nil
}

// LatestStatistics returns the stored snapshot, or nil when none exists yet.
// The sequential bound is not part of the stored snapshot.
func (e *Engine) LatestStatistics(ctx context.Context, experimentID string) (*domain.ExperimentStatistics, error) {
	exp, err := e.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	rows, err := e.statistics.ListByExperiment(ctx, exp.ID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	s := &domain.ExperimentStatistics{ExperimentID: exp.ID, Variants: rows}
	for _, r := range rows {
		if r.IsControl {
			s.Control = r.Variant
		}
		if r.CalculatedAt.After(s.CalculatedAt) {
			s.CalculatedAt = r.CalculatedAt
		}
	}
	return s, nil
}

// Summarize turns raw aggregates into the statistics of an experiment:
// frequentist tests against the control, Beta posteriors for every arm and
// the sequential stopping bound.
func Summarize(exp *domain.Experiment, aggregates map[string]domain.VariantAggregate, now time.Time, draws int) (*domain.ExperimentStatistics, error) {
	control := exp.Control()
	variants := exp.TrafficSplit.Variants()
	alpha := exp.Alpha()
	ctrl := aggregates[control]

	out := &domain.ExperimentStatistics{
		ExperimentID: exp.ID,
		Control:      control,
		Variants:     make([]domain.VariantStatistics, 0, len(variants)),
		CalculatedAt: now,
	}

	var (
		arms     []stats.Arm
		observed int64
	)
	for _, name := range variants {
		agg := aggregates[name]
		row := domain.VariantStatistics{
			ExperimentID: exp.ID,
			Variant:      name,
			IsControl:    name == control,
			TotalUsers:   agg.TotalUsers,
			Conversions:  agg.Conversions,
			TotalValue:   agg.TotalValue,
			HasData:      agg.TotalUsers > 0,
			CalculatedAt: now,
		}
		observed += agg.TotalUsers

		if row.HasData {
			row.ConversionRate = float64(agg.Conversions) / float64(agg.TotalUsers)
			ci, err := stats.ConfidenceInterval(agg.Conversions, agg.TotalUsers, exp.SignificanceThreshold)
			if err != nil {
				return nil, fmt.Errorf("variant %s: %w", name, err)
			}
			row.ConfidenceIntervalLower, row.ConfidenceIntervalUpper = ci.Lower, ci.Upper
			arms = append(arms, stats.Arm{Name: name, Conversions: agg.Conversions, Trials: agg.TotalUsers})
		}

		if !row.IsControl && row.HasData {
			test, err := stats.TwoProportionTest(ctrl.TotalUsers, ctrl.Conversions, agg.TotalUsers, agg.Conversions, stats.TwoSided)
			switch {
			case errors.Is(err, domain.ErrInsufficientData):
			case err != nil:
				return nil, fmt.Errorf("variant %s: %w", name, err)
			default:
				p, z := test.PValue, test.Z
				row.PValue, row.ZScore = &p, &z
				row.StatisticalSignificance = p < alpha
				if ctrl.Conversions > 0 {
					ctrlRate := float64(ctrl.Conversions) / float64(ctrl.TotalUsers)
					lift := (row.ConversionRate - ctrlRate) / ctrlRate
					row.RelativeLift = &lift
				}
			}
		}
		out.Variants = append(out.Variants, row)
	}

	posteriors, err := stats.PosteriorCompare(arms, stats.PosteriorOptions{Draws: draws, CredibleLevel: exp.SignificanceThreshold})
	if err != nil {
		return nil, err
	}
	for _, p := range posteriors {
		row := out.Variant(p.Name)
		row.ProbabilityBest = p.ProbabilityBest
		row.ExpectedLoss = p.ExpectedLoss
		row.CredibleIntervalLower, row.CredibleIntervalUpper = p.Credible.Lower, p.Credible.Upper
	}

	out.Sequential = stats.Sequential(observed, PlannedSampleSize(exp), alpha, out.MinPValue())
	return out, nil
}

// PlannedSampleSize is the total sample the sequential bound measures progress
// against: the power-analysis size when baseline and effect are configured,
// else the minimum sample per arm.
func PlannedSampleSize(exp *domain.Experiment) int64 {
	arms := len(exp.TrafficSplit)
	if exp.BaselineRate != nil && exp.MinimumDetectableEffect != nil {
		plan, err := stats.SampleSize(stats.SampleSizeInput{
			BaselineRate:            *exp.BaselineRate,
			MinimumDetectableEffect: *exp.MinimumDetectableEffect,
			Alpha:                   exp.Alpha(),
		})
		if err == nil {
			return plan.ForArms(arms)
		}
	}
	return exp.MinimumSampleSize * int64(arms)
}
