package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/util"
)

type AssignmentRepository struct {
	db *sql.DB
}

func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Get(ctx context.Context, experimentID, userID string) (*domain.Assignment, error) {
	a, err := WithRetry(ctx, readRetries, func() (*domain.Assignment, error) {
		var (
			a          domain.Assignment
			assignedAt string
		)
		err := r.db.QueryRowContext(ctx,
			`SELECT experiment_id, user_id, variant, assigned_at FROM assignments WHERE experiment_id = ? AND user_id = ?`,
			experimentID, userID,
		).Scan(&a.ExperimentID, &a.UserID, &a.Variant, &assignedAt)
		if err != nil {
			return nil, err
		}
		a.AssignedAt = util.ParseTimeRFC3339(assignedAt)
		return &a, nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// InsertIfAbsent relies on the (experiment_id, user_id) primary key: a losing
// concurrent writer inserts nothing and reads back the winner's row.
func (r *AssignmentRepository) InsertIfAbsent(ctx context.Context, a *domain.Assignment) (*domain.Assignment, bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO assignments (experiment_id, user_id, variant, assigned_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (experiment_id, user_id) DO NOTHING`,
		a.ExperimentID, a.UserID, a.Variant, formatTime(a.AssignedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert assignment: %w", err)
	}

	created := false
	if n, err := res.RowsAffected(); err == nil {
		created = n == 1
	}

	stored, err := r.Get(ctx, a.ExperimentID, a.UserID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("failed to read back assignment for user %q", a.UserID)
	}
	return stored, created && stored.Variant == a.Variant, nil
}

func (r *AssignmentRepository) CountByVariant(ctx context.Context, experimentID string) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT variant, COUNT(*) FROM assignments WHERE experiment_id = ? GROUP BY variant`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			variant string
			n       int64
		)
		if err := rows.Scan(&variant, &n); err != nil {
			return nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts[variant] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to count assignments: %w", err)
	}
	return counts, nil
}
