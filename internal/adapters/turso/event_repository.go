package turso

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/util"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, ev *domain.Event) error {
	metadata, err := ev.Metadata.Encode()
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO events
		(id, experiment_id, user_id, variant, event_type, event_value, session_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.ExperimentID,
		ev.UserID,
		ev.Variant,
		ev.EventType,
		ev.EventValue,
		util.NullStringPtr(ev.SessionID),
		metadata,
		formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListByExperiment returns the newest events first. A non-positive limit
// returns every event.
func (r *EventRepository) ListByExperiment(ctx context.Context, experimentID string, limit int) ([]*domain.Event, error) {
	query := `SELECT id, experiment_id, user_id, variant, event_type, event_value, session_id, metadata, created_at
		FROM events WHERE experiment_id = ? ORDER BY created_at DESC, id`
	args := []any{experimentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		var (
			ev        domain.Event
			sessionID sql.NullString
			metadata  string
			createdAt string
		)
		if err := rows.Scan(&ev.ID, &ev.ExperimentID, &ev.UserID, &ev.Variant, &ev.EventType,
			&ev.EventValue, &sessionID, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.SessionID = util.NullStringToPtr(sessionID)
		ev.CreatedAt = util.ParseTimeRFC3339(createdAt)
		if ev.Metadata, err = domain.DecodeMetadata(metadata); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// ConversionsByVariant only counts events logged under the user's assigned
// variant, so stray events never inflate a variant's numerator.
func (r *EventRepository) ConversionsByVariant(ctx context.Context, experimentID, eventType string) (map[string]domain.VariantAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.variant, COUNT(DISTINCT e.user_id), SUM(e.event_value)
		FROM events e
		JOIN assignments a
			ON a.experiment_id = e.experiment_id
			AND a.user_id = e.user_id
			AND a.variant = e.variant
		WHERE e.experiment_id = ? AND e.event_type = ?
		GROUP BY a.variant`,
		experimentID, eventType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate conversions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.VariantAggregate)
	for rows.Next() {
		var (
			variant     string
			conversions any
			total       any
		)
		if err := rows.Scan(&variant, &conversions, &total); err != nil {
			return nil, fmt.Errorf("failed to scan conversions: %w", err)
		}
		out[variant] = domain.VariantAggregate{
			Variant:     variant,
			Conversions: util.ToInt64(conversions),
			TotalValue:  util.ToFloat64(total),
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate conversions: %w", err)
	}
	return out, nil
}
