package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/ports"
)

// Buckets is the resolution of the traffic split.
const Buckets = 100

// Bucket deterministically maps a user onto [0, Buckets) for one experiment.
func Bucket(experimentID, userID string) int {
	return int(xxhash.Sum64String(experimentID+":"+userID) % Buckets)
}

// Assigner hands out sticky variant assignments.
type Assigner struct {
	registry    *Registry
	features    ports.FeatureRepository
	assignments ports.AssignmentRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
	now         func() time.Time
}

func NewAssigner(registry *Registry, features ports.FeatureRepository, assignments ports.AssignmentRepository, opts Options) *Assigner {
	opts = opts.withDefaults()
	return &Assigner{
		registry:    registry,
		features:    features,
		assignments: assignments,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// GetVariant returns the user's variant for the experiment (or feature flag
// linked to one) named by key. Existing assignments are returned in any
// status; new users are only bucketed while the experiment is running.
func (a *Assigner) GetVariant(ctx context.Context, key, userID string) (*domain.Assignment, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewValidationError("user_id", "must not be empty")
	}
	exp, err := a.resolve(ctx, key)
	if err != nil {
		return nil, err
	}

	existing, err := a.assignments.Get(ctx, exp.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		a.metrics.RecordAssignment(ctx, exp.ID, existing.Variant, false)
		return existing, nil
	}

	if exp.Status != domain.StatusRunning {
		return nil, &domain.ValidationError{
			Field:   "experiment",
			Message: fmt.Sprintf("experiment %q is %s", exp.Name, exp.Status),
			Err:     domain.ErrNotRunning,
		}
	}

	candidate := &domain.Assignment{
		ExperimentID: exp.ID,
		UserID:       userID,
		Variant:      exp.TrafficSplit.Bucket(Bucket(exp.ID, userID)),
		AssignedAt:   a.now(),
	}
	stored, created, err := a.assignments.InsertIfAbsent(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !created {
		a.logger.Debug("assignment race lost", "experiment_id", exp.ID, "user_id", userID, "variant", stored.Variant)
	}
	a.metrics.RecordAssignment(ctx, exp.ID, stored.Variant, created)
	return stored, nil
}

func (a *Assigner) resolve(ctx context.Context, key string) (*domain.Experiment, error) {
	if a.features != nil {
		f, err := a.features.GetByName(ctx, key)
		if err != nil {
			return nil, err
		}
		if f != nil && f.IsExperiment && f.ExperimentID != nil {
			return a.registry.Get(ctx, *f.ExperimentID)
		}
	}
	return a.registry.Resolve(ctx, key)
}
