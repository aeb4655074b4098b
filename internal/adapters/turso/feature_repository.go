package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/util"
)

const featureColumns = `id, name, enabled, is_experiment, experiment_id, created_at, updated_at`

type FeatureRepository struct {
	db *sql.DB
}

func NewFeatureRepository(db *sql.DB) *FeatureRepository {
	return &FeatureRepository{db: db}
}

func (r *FeatureRepository) Create(ctx context.Context, f *domain.Feature) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO features (`+featureColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID,
		f.Name,
		util.BoolToInt64(f.Enabled),
		util.BoolToInt64(f.IsExperiment),
		util.NullStringPtr(f.ExperimentID),
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create feature: %w", err)
	}
	return nil
}

func (r *FeatureRepository) GetByID(ctx context.Context, id string) (*domain.Feature, error) {
	return r.getOne(ctx, `SELECT `+featureColumns+` FROM features WHERE id = ?`, id)
}

func (r *FeatureRepository) GetByName(ctx context.Context, name string) (*domain.Feature, error) {
	return r.getOne(ctx, `SELECT `+featureColumns+` FROM features WHERE name = ?`, name)
}

func (r *FeatureRepository) getOne(ctx context.Context, query, arg string) (*domain.Feature, error) {
	f, err := scanFeature(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}
	return f, nil
}

func (r *FeatureRepository) List(ctx context.Context) ([]*domain.Feature, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+featureColumns+` FROM features ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []*domain.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	return features, nil
}

// SetExperiment links the feature to experimentID, or unlinks it when nil.
// is_experiment follows the link.
func (r *FeatureRepository) SetExperiment(ctx context.Context, featureID string, experimentID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE features SET experiment_id = ?, is_experiment = ?, updated_at = ? WHERE id = ?`,
		util.NullStringPtr(experimentID),
		util.BoolToInt64(experimentID != nil),
		formatTime(time.Now()),
		featureID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feature link: %w", err)
	}
	return nil
}

func scanFeature(s rowScanner) (*domain.Feature, error) {
	var (
		f                     domain.Feature
		enabled, isExperiment int64
		experimentID          sql.NullString
		createdAt, updatedAt  string
	)
	if err := s.Scan(&f.ID, &f.Name, &enabled, &isExperiment, &experimentID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Enabled = enabled == 1
	f.IsExperiment = isExperiment == 1
	f.ExperimentID = util.NullStringToPtr(experimentID)
	f.CreatedAt = util.ParseTimeRFC3339(createdAt)
	f.UpdatedAt = util.ParseTimeRFC3339(updatedAt)
	return &f, nil
}
