package experiment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

func TestRebalanceTraffic_EqualRates(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	e := createRunning(t, svc, "checkout", domain.TrafficSplit{"control": 30, "variant_a": 70}, 100)
	store.seedArm(e.ID, "purchase", "control", 100, 10)
	store.seedArm(e.ID, "purchase", "variant_a", 100, 10)

	r, err := svc.Allocator.RebalanceTraffic(ctx, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TrafficSplit{"control": 50, "variant_a": 50}, r.Proposed)
	assert.False(t, r.Applied)

	unchanged, err := svc.Registry.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 70, unchanged.TrafficSplit["variant_a"])
}

func TestRebalanceTraffic_ApplyShiftsTowardWinner(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	e := createRunning(t, svc, "checkout", domain.TrafficSplit{"control": 50, "variant_a": 50}, 100)
	store.seedArm(e.ID, "purchase", "control", 100, 5)
	store.seedArm(e.ID, "purchase", "variant_a", 100, 15)

	_, err := svc.Engine.RefreshStatistics(ctx, e.ID)
	require.NoError(t, err)

	r, err := svc.Allocator.RebalanceTraffic(ctx, e.ID, true)
	require.NoError(t, err)
	assert.True(t, r.Applied)
	assert.Equal(t, domain.TrafficSplit{"control": 25, "variant_a": 75}, r.Proposed)
	assert.Equal(t, domain.TrafficSplit{"control": 50, "variant_a": 50}, r.Previous)

	stored, err := svc.Registry.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Proposed, stored.TrafficSplit)
}

func TestRebalanceTraffic_ClampsStarvedArm(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestServices(t)
	e := createRunning(t, svc, "checkout", domain.TrafficSplit{"control": 50, "variant_a": 50}, 100)
	store.seedArm(e.ID, "purchase", "control", 100, 0)
	store.seedArm(e.ID, "purchase", "variant_a", 100, 30)

	r, err := svc.Allocator.RebalanceTraffic(ctx, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TrafficSplit{"control": 10, "variant_a": 90}, r.Proposed)
}

func TestRebalanceTraffic_ApplyRequiresLiveExperiment(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t)
	e, err := svc.Registry.Create(ctx, CreateInput{
		Name: "draft", SuccessMetric: "purchase",
		TrafficSplit: domain.TrafficSplit{"control": 50, "variant_a": 50}, MinimumSampleSize: 10,
	})
	require.NoError(t, err)

	_, err = svc.Allocator.RebalanceTraffic(ctx, e.ID, true)
	assert.True(t, domain.IsConflict(err), "got %v", err)

	r, err := svc.Allocator.RebalanceTraffic(ctx, e.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.TrafficSplit{"control": 50, "variant_a": 50}, r.Proposed)
}
