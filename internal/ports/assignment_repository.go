package ports

import (
	"context"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

type AssignmentRepository interface {
	Get(ctx context.Context, experimentID, userID string) (*domain.Assignment, error)
	// InsertIfAbsent writes the assignment unless one already exists for the
	// same (experiment, user) and returns whichever row is persisted.
	InsertIfAbsent(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, bool, error)
	CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error)
}
