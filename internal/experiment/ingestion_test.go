package experiment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

func TestTrackEvent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t)
	e := createRunning(t, svc, "checkout", domain.TrafficSplit{"control": 50, "variant_a": 50}, 100)

	a, err := svc.Assigner.GetVariant(ctx, e.ID, "u1")
	require.NoError(t, err)

	ev, err := svc.Tracker.TrackEvent(ctx, TrackEventInput{
		ExperimentID: e.ID,
		UserID:       "u1",
		EventType:    "purchase",
		Metadata:     domain.Metadata{"sku": "A-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.EventValue, "event value defaults to 1")
	assert.Equal(t, a.Variant, ev.Variant, "variant defaults to the assignment")
	assert.NotEmpty(t, ev.ID)

	value := 42.5
	_, err = svc.Tracker.TrackEvent(ctx, TrackEventInput{
		ExperimentID: "checkout", UserID: "u1", Variant: a.Variant, EventType: "purchase", EventValue: &value,
	})
	require.NoError(t, err)

	events, err := svc.Tracker.ListEvents(ctx, e.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 42.5, events[0].EventValue)
}

func TestTrackEvent_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t)
	e := createRunning(t, svc, "checkout", domain.TrafficSplit{"control": 50, "variant_a": 50}, 100)
	a, err := svc.Assigner.GetVariant(ctx, e.ID, "u1")
	require.NoError(t, err)

	other := "control"
	if a.Variant == "control" {
		other = "variant_a"
	}

	tests := []struct {
		name  string
		input TrackEventInput
		is    error
	}{
		{"empty user", TrackEventInput{ExperimentID: e.ID, EventType: "purchase"}, nil},
		{"empty event type", TrackEventInput{ExperimentID: e.ID, UserID: "u1"}, nil},
		{"empty metadata key", TrackEventInput{ExperimentID: e.ID, UserID: "u1", EventType: "purchase", Metadata: domain.Metadata{"": "x"}}, nil},
		{"unassigned user", TrackEventInput{ExperimentID: e.ID, UserID: "ghost", EventType: "purchase"}, domain.ErrVariantMismatch},
		{"wrong variant", TrackEventInput{ExperimentID: e.ID, UserID: "u1", Variant: other, EventType: "purchase"}, domain.ErrVariantMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Tracker.TrackEvent(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}

	_, err = svc.Registry.Pause(ctx, e.ID)
	require.NoError(t, err)
	_, err = svc.Tracker.TrackEvent(ctx, TrackEventInput{ExperimentID: e.ID, UserID: "u1", EventType: "purchase"})
	assert.True(t, errors.Is(err, domain.ErrNotRunning), "got %v", err)
}
