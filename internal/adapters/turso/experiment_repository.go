package turso

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/util"
)

const experimentColumns = `id, name, description, hypothesis, success_metric, traffic_split,
	minimum_sample_size, significance_threshold, test_duration_days, baseline_rate,
	minimum_detectable_effect, status, winner_variant, confidence_level, started_at,
	ended_at, created_at, updated_at`

type ExperimentRepository struct {
	db *sql.DB
}

func NewExperimentRepository(db *sql.DB) *ExperimentRepository {
	return &ExperimentRepository{db: db}
}

func (r *ExperimentRepository) Create(ctx context.Context, e *domain.Experiment) error {
	split, err := e.TrafficSplit.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO experiments (`+experimentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Name,
		util.NullStringPtr(e.Description),
		util.NullStringPtr(e.Hypothesis),
		e.SuccessMetric,
		split,
		e.MinimumSampleSize,
		e.SignificanceThreshold,
		e.TestDurationDays,
		util.NullFloat64(e.BaselineRate),
		util.NullFloat64(e.MinimumDetectableEffect),
		string(e.Status),
		util.NullStringPtr(e.WinnerVariant),
		util.NullFloat64(e.ConfidenceLevel),
		formatTimePtr(e.StartedAt),
		formatTimePtr(e.EndedAt),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create experiment: %w", err)
	}
	return nil
}

func (r *ExperimentRepository) GetByID(ctx context.Context, id string) (*domain.Experiment, error) {
	return r.getOne(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
}

func (r *ExperimentRepository) GetByName(ctx context.Context, name string) (*domain.Experiment, error) {
	return r.getOne(ctx, `SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
}

func (r *ExperimentRepository) getOne(ctx context.Context, query, arg string) (*domain.Experiment, error) {
	e, err := WithRetry(ctx, readRetries, func() (*domain.Experiment, error) {
		return scanExperiment(r.db.QueryRowContext(ctx, query, arg))
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return e, nil
}

func (r *ExperimentRepository) List(ctx context.Context, status *domain.Status) ([]*domain.Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC, name`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	return experiments, nil
}

func (r *ExperimentRepository) Update(ctx context.Context, e *domain.Experiment) error {
	split, err := e.TrafficSplit.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `UPDATE experiments SET
			name = ?, description = ?, hypothesis = ?, success_metric = ?, traffic_split = ?,
			minimum_sample_size = ?, significance_threshold = ?, test_duration_days = ?,
			baseline_rate = ?, minimum_detectable_effect = ?, status = ?, winner_variant = ?,
			confidence_level = ?, started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ?`,
		e.Name,
		util.NullStringPtr(e.Description),
		util.NullStringPtr(e.Hypothesis),
		e.SuccessMetric,
		split,
		e.MinimumSampleSize,
		e.SignificanceThreshold,
		e.TestDurationDays,
		util.NullFloat64(e.BaselineRate),
		util.NullFloat64(e.MinimumDetectableEffect),
		string(e.Status),
		util.NullStringPtr(e.WinnerVariant),
		util.NullFloat64(e.ConfidenceLevel),
		formatTimePtr(e.StartedAt),
		formatTimePtr(e.EndedAt),
		formatTime(e.UpdatedAt),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment: %w", err)
	}
	return nil
}

// Delete removes the experiment. Assignments, events and statistics cascade.
func (r *ExperimentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return nil
}

func scanExperiment(s rowScanner) (*domain.Experiment, error) {
	var (
		e                          domain.Experiment
		description, hypothesis    sql.NullString
		split, status              string
		baseline, mde, confidence  sql.NullFloat64
		winner, startedAt, endedAt sql.NullString
		createdAt, updatedAt       string
	)

	err := s.Scan(
		&e.ID,
		&e.Name,
		&description,
		&hypothesis,
		&e.SuccessMetric,
		&split,
		&e.MinimumSampleSize,
		&e.SignificanceThreshold,
		&e.TestDurationDays,
		&baseline,
		&mde,
		&status,
		&winner,
		&confidence,
		&startedAt,
		&endedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.TrafficSplit, err = domain.DecodeTrafficSplit(split)
	if err != nil {
		return nil, err
	}
	e.Status = domain.Status(status)
	e.Description = util.NullStringToPtr(description)
	e.Hypothesis = util.NullStringToPtr(hypothesis)
	e.BaselineRate = util.NullFloat64ToPtr(baseline)
	e.MinimumDetectableEffect = util.NullFloat64ToPtr(mde)
	e.WinnerVariant = util.NullStringToPtr(winner)
	e.ConfidenceLevel = util.NullFloat64ToPtr(confidence)
	e.StartedAt = parseTimePtr(startedAt)
	e.EndedAt = parseTimePtr(endedAt)
	e.CreatedAt = util.ParseTimeRFC3339(createdAt)
	e.UpdatedAt = util.ParseTimeRFC3339(updatedAt)
	return &e, nil
}
