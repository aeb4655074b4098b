package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/ports"
)

// CreateInput describes a new experiment. A zero SignificanceThreshold takes
// the default of 0.95.
type CreateInput struct {
	Name                    string
	Description             *string
	Hypothesis              *string
	SuccessMetric           string
	TrafficSplit            domain.TrafficSplit
	MinimumSampleSize       int64
	SignificanceThreshold   float64
	TestDurationDays        int64
	BaselineRate            *float64
	MinimumDetectableEffect *float64
}

// DetailsUpdate carries the optional fields of an experiment edit. Nil fields
// are left unchanged.
type DetailsUpdate struct {
	Name                    *string
	Description             *string
	Hypothesis              *string
	SuccessMetric           *string
	MinimumSampleSize       *int64
	SignificanceThreshold   *float64
	TestDurationDays        *int64
	BaselineRate            *float64
	MinimumDetectableEffect *float64
}

// Registry owns experiment definitions and their lifecycle.
type Registry struct {
	repo   ports.ExperimentRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewRegistry(repo ports.ExperimentRepository, opts Options) *Registry {
	opts = opts.withDefaults()
	return &Registry{repo: repo, logger: opts.Logger, now: opts.Now}
}

// Create validates and stores a draft experiment.
func (r *Registry) Create(ctx context.Context, in CreateInput) (*domain.Experiment, error) {
	now := r.now()
	e := &domain.Experiment{
		ID:                      uuid.NewString(),
		Name:                    strings.TrimSpace(in.Name),
		Description:             in.Description,
		Hypothesis:              in.Hypothesis,
		SuccessMetric:           strings.TrimSpace(in.SuccessMetric),
		TrafficSplit:            in.TrafficSplit,
		MinimumSampleSize:       in.MinimumSampleSize,
		SignificanceThreshold:   in.SignificanceThreshold,
		TestDurationDays:        in.TestDurationDays,
		BaselineRate:            in.BaselineRate,
		MinimumDetectableEffect: in.MinimumDetectableEffect,
		Status:                  domain.StatusDraft,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if e.SignificanceThreshold == 0 {
		e.SignificanceThreshold = domain.DefaultSignificanceThreshold
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if err := r.ensureUniqueName(ctx, e.Name, ""); err != nil {
		return nil, err
	}

	if err := r.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	r.logger.Info("experiment created", "experiment_id", e.ID, "name", e.Name, "split", e.TrafficSplit.String())
	return e, nil
}

func (r *Registry) ensureUniqueName(ctx context.Context, name, selfID string) error {
	existing, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return domain.NewValidationError("name", fmt.Sprintf("experiment %q already exists", name))
	}
	return nil
}

// Get returns the experiment with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &domain.NotFoundError{Entity: "experiment", Key: id}
	}
	return e, nil
}

// GetByName returns the experiment with the given unique name.
func (r *Registry) GetByName(ctx context.Context, name string) (*domain.Experiment, error) {
	e, err := r.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &domain.NotFoundError{Entity: "experiment", Key: name}
	}
	return e, nil
}

// Resolve looks key up as an id first, then as a name.
func (r *Registry) Resolve(ctx context.Context, key string) (*domain.Experiment, error) {
	e, err := r.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if e != nil {
		return e, nil
	}
	return r.GetByName(ctx, key)
}

// List returns all experiments, optionally filtered by status.
func (r *Registry) List(ctx context.Context, status *domain.Status) ([]*domain.Experiment, error) {
	return r.repo.List(ctx, status)
}

// UpdateDetails edits configuration fields of a draft or paused experiment.
func (r *Registry) UpdateDetails(ctx context.Context, id string, u DetailsUpdate) (*domain.Experiment, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.SplitEditable() {
		return nil, notEditable(e)
	}

	if u.Name != nil {
		e.Name = strings.TrimSpace(*u.Name)
	}
	if u.Description != nil {
		e.Description = u.Description
	}
	if u.Hypothesis != nil {
		e.Hypothesis = u.Hypothesis
	}
	if u.SuccessMetric != nil {
		e.SuccessMetric = strings.TrimSpace(*u.SuccessMetric)
	}
	if u.MinimumSampleSize != nil {
		e.MinimumSampleSize = *u.MinimumSampleSize
	}
	if u.SignificanceThreshold != nil {
		e.SignificanceThreshold = *u.SignificanceThreshold
	}
	if u.TestDurationDays != nil {
		e.TestDurationDays = *u.TestDurationDays
	}
	if u.BaselineRate != nil {
		e.BaselineRate = u.BaselineRate
	}
	if u.MinimumDetectableEffect != nil {
		e.MinimumDetectableEffect = u.MinimumDetectableEffect
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if u.Name != nil {
		if err := r.ensureUniqueName(ctx, e.Name, e.ID); err != nil {
			return nil, err
		}
	}

	e.UpdatedAt = r.now()
	if err := r.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateTrafficSplit replaces the split of a draft or paused experiment. Once an
// experiment has started, the variant set is fixed.
func (r *Registry) UpdateTrafficSplit(ctx context.Context, id string, split domain.TrafficSplit) (*domain.Experiment, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.SplitEditable() {
		return nil, notEditable(e)
	}
	if err := r.applySplit(ctx, e, split); err != nil {
		return nil, err
	}
	return e, nil
}

// applySplit is shared with the allocation controller, which may also write
// while the experiment is running.
func (r *Registry) applySplit(ctx context.Context, e *domain.Experiment, split domain.TrafficSplit) error {
	if err := split.Validate(); err != nil {
		return err
	}
	if e.Status != domain.StatusDraft && !sameVariants(e.TrafficSplit, split) {
		return domain.NewValidationError("traffic_split", "variants cannot change after the experiment has started")
	}

	previous := e.TrafficSplit.String()
	e.TrafficSplit = split
	e.UpdatedAt = r.now()
	if err := r.repo.Update(ctx, e); err != nil {
		return err
	}
	r.logger.Info("traffic split updated", "experiment_id", e.ID, "from", previous, "to", split.String())
	return nil
}

func sameVariants(a, b domain.TrafficSplit) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if !b.Has(name) {
			return false
		}
	}
	return true
}

func notEditable(e *domain.Experiment) error {
	return &domain.ValidationError{
		Field:   "status",
		Message: fmt.Sprintf("experiment is %s; edits require draft or paused", e.Status),
		Err:     domain.ErrInvalidTransition,
	}
}

func (r *Registry) Start(ctx context.Context, id string) (*domain.Experiment, error) {
	return r.transition(ctx, id, "started", (*domain.Experiment).Start)
}

func (r *Registry) Pause(ctx context.Context, id string) (*domain.Experiment, error) {
	return r.transition(ctx, id, "paused", (*domain.Experiment).Pause)
}

func (r *Registry) Resume(ctx context.Context, id string) (*domain.Experiment, error) {
	return r.transition(ctx, id, "resumed", (*domain.Experiment).Resume)
}

func (r *Registry) Stop(ctx context.Context, id string) (*domain.Experiment, error) {
	return r.transition(ctx, id, "stopped", (*domain.Experiment).Stop)
}

// Complete closes the experiment with a declared winner.
func (r *Registry) Complete(ctx context.Context, id, winner string, confidence float64) (*domain.Experiment, error) {
	return r.transition(ctx, id, "completed", func(e *domain.Experiment, now time.Time) error {
		return e.Complete(now, winner, confidence)
	})
}

func (r *Registry) transition(ctx context.Context, id, verb string, apply func(*domain.Experiment, time.Time) error) (*domain.Experiment, error) {
	e, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	from := e.Status
	if err := apply(e, r.now()); err != nil {
		return nil, err
	}
	if e.Status == from {
		return e, nil
	}
	if err := r.repo.Update(ctx, e); err != nil {
		return nil, err
	}
	r.logger.Info("experiment "+verb, "experiment_id", e.ID, "from", from, "to", e.Status)
	return e, nil
}

// Delete removes a draft or finished experiment together with its
// assignments, events and statistics.
func (r *Registry) Delete(ctx context.Context, id string) error {
	e, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != domain.StatusDraft && !e.Status.Terminal() {
		return &domain.ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("cannot delete a %s experiment; stop it first", e.Status),
			Err:     domain.ErrInvalidTransition,
		}
	}
	if err := r.repo.Delete(ctx, e.ID); err != nil {
		return err
	}
	r.logger.Info("experiment deleted", "experiment_id", e.ID, "name", e.Name)
	return nil
}
