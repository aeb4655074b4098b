package turso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/util"
)

type StatisticsRepository struct {
	db *sql.DB
}

func NewStatisticsRepository(db *sql.DB) *StatisticsRepository {
	return &StatisticsRepository{db: db}
}

// Replace swaps the stored snapshot for the experiment in one transaction.
func (r *StatisticsRepository) Replace(ctx context.Context, experimentID string, rows []domain.VariantStatistics) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM statistics WHERE experiment_id = ?`, experimentID); err != nil {
		return fmt.Errorf("failed to clear statistics: %w", err)
	}

	for _, s := range rows {
		_, err := tx.ExecContext(ctx, `INSERT INTO statistics (
				experiment_id, variant, is_control, total_users, conversions, total_value,
				conversion_rate, confidence_interval_lower, confidence_interval_upper,
				statistical_significance, p_value, z_score, relative_lift, probability_best,
				expected_loss, credible_interval_lower, credible_interval_upper, has_data, calculated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			experimentID,
			s.Variant,
			util.BoolToInt64(s.IsControl),
			s.TotalUsers,
			s.Conversions,
			s.TotalValue,
			s.ConversionRate,
			s.ConfidenceIntervalLower,
			s.ConfidenceIntervalUpper,
			util.BoolToInt64(s.StatisticalSignificance),
			util.NullFloat64(s.PValue),
			util.NullFloat64(s.ZScore),
			util.NullFloat64(s.RelativeLift),
			s.ProbabilityBest,
			s.ExpectedLoss,
			s.CredibleIntervalLower,
			s.CredibleIntervalUpper,
			util.BoolToInt64(s.HasData),
			formatTime(s.CalculatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert statistics for %s: %w", s.Variant, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit statistics: %w", err)
	}
	return nil
}

func (r *StatisticsRepository) ListByExperiment(ctx context.Context, experimentID string) ([]domain.VariantStatistics, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
			experiment_id, variant, is_control, total_users, conversions, total_value,
			conversion_rate, confidence_interval_lower, confidence_interval_upper,
			statistical_significance, p_value, z_score, relative_lift, probability_best,
			expected_loss, credible_interval_lower, credible_interval_upper, has_data, calculated_at
		FROM statistics WHERE experiment_id = ? ORDER BY variant`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}
	defer rows.Close()

	var out []domain.VariantStatistics
	for rows.Next() {
		var (
			s                       domain.VariantStatistics
			isControl, sig, hasData int64
			pValue, zScore, lift    sql.NullFloat64
			calculatedAt            string
		)
		err := rows.Scan(
			&s.ExperimentID, &s.Variant, &isControl, &s.TotalUsers, &s.Conversions, &s.TotalValue,
			&s.ConversionRate, &s.ConfidenceIntervalLower, &s.ConfidenceIntervalUpper,
			&sig, &pValue, &zScore, &lift, &s.ProbabilityBest,
			&s.ExpectedLoss, &s.CredibleIntervalLower, &s.CredibleIntervalUpper, &hasData, &calculatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan statistics: %w", err)
		}
		s.IsControl = isControl == 1
		s.StatisticalSignificance = sig == 1
		s.HasData = hasData == 1
		s.PValue = util.NullFloat64ToPtr(pValue)
		s.ZScore = util.NullFloat64ToPtr(zScore)
		s.RelativeLift = util.NullFloat64ToPtr(lift)
		s.CalculatedAt = util.ParseTimeRFC3339(calculatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list statistics: %w", err)
	}
	return out, nil
}

func (r *StatisticsRepository) DeleteByExperiment(ctx context.Context, experimentID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM statistics WHERE experiment_id = ?`, experimentID); err != nil {
		return fmt.Errorf("failed to delete statistics: %w", err)
	}
	return nil
}
