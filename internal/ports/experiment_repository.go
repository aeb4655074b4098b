package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

// ExperimentRepository persists experiment definitions. Lookups return (nil, nil)
// when nothing matches.
type ExperimentRepository interface {
	Create(ctx context.Context, experiment *domain.Experiment) error
	GetByID(ctx context.Context, id string) (*domain.Experiment, error)
	GetByName(ctx context.Context, name string) (*domain.Experiment, error)
	List(ctx context.Context, status *domain.Status) ([]*domain.Experiment, error)
	Update(ctx context.Context, experiment *domain.Experiment) error
	Delete(ctx context.Context, id string) error
}
