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

// Features manages the link between feature flags and experiments.
type Features struct {
	registry *Registry
	repo     ports.FeatureRepository
	logger   *slog.Logger
	now      func() time.Time
}

func NewFeatures(registry *Registry, repo ports.FeatureRepository, opts Options) *Features {
	opts = opts.withDefaults()
	return &Features{registry: registry, repo: repo, logger: opts.Logger, now: opts.Now}
}

func (f *Features) CreateFeature(ctx context.Context, name string, enabled bool) (*domain.Feature, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError("name", "must not be empty")
	}
	existing, err := f.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.NewValidationError("name", fmt.Sprintf("feature %q already exists", name))
	}

	now := f.now()
	feature := &domain.Feature{
		ID:        uuid.NewString(),
		Name:      name,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.repo.Create(ctx, feature); err != nil {
		return nil, err
	}
	return feature, nil
}

func (f *Features) ListFeatures(ctx context.Context) ([]*domain.Feature, error) {
	return f.repo.List(ctx)
}

// LinkExperimentToFeature marks the feature as experiment-driven.
func (f *Features) LinkExperimentToFeature(ctx context.Context, experimentID, featureID string) (*domain.Feature, error) {
	exp, err := f.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	feature, err := f.resolve(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if err := f.repo.SetExperiment(ctx, feature.ID, &exp.ID); err != nil {
		return nil, err
	}
	f.logger.Info("feature linked", "feature", feature.Name, "experiment_id", exp.ID)
	return f.resolve(ctx, feature.ID)
}

// UnlinkExperimentFromFeature clears the feature's experiment link.
func (f *Features) UnlinkExperimentFromFeature(ctx context.Context, featureID string) (*domain.Feature, error) {
	feature, err := f.resolve(ctx, featureID)
	if err != nil {
		return nil, err
	}
	if err := f.repo.SetExperiment(ctx, feature.ID, nil); err != nil {
		return nil, err
	}
	f.logger.Info("feature unlinked", "feature", feature.Name)
	return f.resolve(ctx, feature.ID)
}

func (f *Features) resolve(ctx context.Context, key string) (*domain.Feature, error) {
	feature, err := f.repo.GetByID(ctx, key)
	if err != nil {
		return nil, err
	}
	if feature == nil {
		if feature, err = f.repo.GetByName(ctx, key); err != nil {
			return nil, err
		}
	}
	if feature == nil {
		return nil, &domain.NotFoundError{Entity: "feature", Key: key}
	}
	return feature, nil
}
