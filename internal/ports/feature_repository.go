package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

type FeatureRepository interface {
	Create(ctx context.Context, feature *domain.Feature) error
	GetByID(ctx context.Context, id string) (*domain.Feature, error)
	GetByName(ctx context.Context, name string) (*domain.Feature, error)
	List(ctx context.Context) ([]*domain.Feature, error)
	SetExperiment(ctx context.Context, featureID string, experimentID *string) error
}
