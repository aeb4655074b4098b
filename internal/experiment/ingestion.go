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

// TrackEventInput is one event report. An empty Variant takes the user's
// assigned variant; a nil EventValue counts as 1.
type TrackEventInput struct {
	ExperimentID string
	UserID       string
	Variant      string
	EventType    string
	EventValue   *float64
	SessionID    *string
	Metadata     domain.Metadata
}

// Tracker appends events to the experiment log.
type Tracker struct {
	registry    *Registry
	assignments ports.AssignmentRepository
	events      ports.EventRepository
	metrics     ports.MetricsExporter
	logger      *slog.Logger
	now         func() time.Time
}

func NewTracker(registry *Registry, assignments ports.AssignmentRepository, events ports.EventRepository, opts Options) *Tracker {
	opts = opts.withDefaults()
	return &Tracker{
		registry:    registry,
		assignments: assignments,
		events:      events,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		now:         opts.Now,
	}
}

// TrackEvent records an event for an assigned user of a running experiment.
func (t *Tracker) TrackEvent(ctx context.Context, in TrackEventInput) (*domain.Event, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, domain.NewValidationError("user_id", "must not be empty")
	}
	if strings.TrimSpace(in.EventType) == "" {
		return nil, domain.NewValidationError("event_type", "must not be empty")
	}
	if err := in.Metadata.Validate(); err != nil {
		return nil, err
	}

	exp, err := t.registry.Resolve(ctx, in.ExperimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != domain.StatusRunning {
		return nil, &domain.ValidationError{
			Field:   "experiment",
			Message: fmt.Sprintf("experiment %q is %s", exp.Name, exp.Status),
			Err:     domain.ErrNotRunning,
		}
	}

	assignment, err := t.assignments.Get(ctx, exp.ID, in.UserID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, &domain.ValidationError{
			Field:   "user_id",
			Message: fmt.Sprintf("user %q has no assignment in %q", in.UserID, exp.Name),
			Err:     domain.ErrVariantMismatch,
		}
	}
	variant := strings.TrimSpace(in.Variant)
	if variant == "" {
		variant = assignment.Variant
	}
	if variant != assignment.Variant {
		return nil, &domain.ValidationError{
			Field:   "variant",
			Message: fmt.Sprintf("user %q is assigned to %q, not %q", in.UserID, assignment.Variant, variant),
			Err:     domain.ErrVariantMismatch,
		}
	}

	value := 1.0
	if in.EventValue != nil {
		value = *in.EventValue
	}
	ev := &domain.Event{
		ID:           uuid.NewString(),
		ExperimentID: exp.ID,
		UserID:       in.UserID,
		Variant:      variant,
		EventType:    strings.TrimSpace(in.EventType),
		EventValue:   value,
		SessionID:    in.SessionID,
		Metadata:     in.Metadata,
		CreatedAt:    t.now(),
	}
	if err := t.events.Append(ctx, ev); err != nil {
		return nil, err
	}

	t.metrics.RecordEvent(ctx, exp.ID, variant, ev.EventType, value)
	t.logger.Debug("event tracked", "experiment_id", exp.ID, "user_id", in.UserID, "event_type", ev.EventType)
	return ev, nil
}

// ListEvents returns the newest events of an experiment.
func (t *Tracker) ListEvents(ctx context.Context, experimentID string, limit int) ([]*domain.Event, error) {
	exp, err := t.registry.Resolve(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return t.events.ListByExperiment(ctx, exp.ID, limit)
}
