package turso_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/abacus/internal/adapters/turso"
	"github.com/emiliopalmerini/abacus/internal/domain"
)

func TestExperimentRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := turso.NewExperimentRepository(testDB(t))

	exp := newExperiment("exp-1", "checkout")
	exp.TrafficSplit = domain.TrafficSplit{"control": 34, "variant_a": 33, "variant_b": 33}
	exp.BaselineRate = ptr(0.1)
	exp.MinimumDetectableEffect = ptr(0.2)
	require.NoError(t, repo.Create(ctx, exp))

	got, err := repo.GetByID(ctx, "exp-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, exp.TrafficSplit, got.TrafficSplit)
	wantSplit, _ := exp.TrafficSplit.Encode()
	gotSplit, _ := got.TrafficSplit.Encode()
	assert.Equal(t, wantSplit, gotSplit)
	assert.Equal(t, domain.StatusDraft, got.Status)
	assert.Equal(t, int64(500), got.MinimumSampleSize)
	assert.Equal(t, 0.95, got.SignificanceThreshold)
	assert.Equal(t, int64(14), got.TestDurationDays)
	assert.Equal(t, "checkout button colour", *got.Description)
	assert.Nil(t, got.Hypothesis)
	assert.Equal(t, 0.1, *got.BaselineRate)
	assert.Equal(t, 0.2, *got.MinimumDetectableEffect)
	assert.Nil(t, got.StartedAt)
	assert.True(t, exp.CreatedAt.Equal(got.CreatedAt))

	byName, err := repo.GetByName(ctx, "checkout")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "exp-1", byName.ID)
}

func TestExperimentRepository_GetMissing(t *testing.T) {
	repo := turso.NewExperimentRepository(testDB(t))

	got, err := repo.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExperimentRepository_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	repo := turso.NewExperimentRepository(testDB(t))

	a := newExperiment("exp-a", "a")
	b := newExperiment("exp-b", "b")
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	now := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	require.NoError(t, a.Start(now))
	require.NoError(t, repo.Update(ctx, a))

	running := domain.StatusRunning
	list, err := repo.List(ctx, &running)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "exp-a", list[0].ID)
	require.NotNil(t, list[0].StartedAt)
	assert.True(t, now.Equal(*list[0].StartedAt))

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestExperimentRepository_DuplicateName(t *testing.T) {
	ctx := context.Background()
	repo := turso.NewExperimentRepository(testDB(t))

	require.NoError(t, repo.Create(ctx, newExperiment("exp-1", "same")))
	assert.Error(t, repo.Create(ctx, newExperiment("exp-2", "same")))
}

func TestAssignmentRepository_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-1", "checkout")))
	repo := turso.NewAssignmentRepository(db)

	first := &domain.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "control", AssignedAt: time.Now()}
	got, created, err := repo.InsertIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "control", got.Variant)

	second := &domain.Assignment{ExperimentID: "exp-1", UserID: "u1", Variant: "variant_a", AssignedAt: time.Now()}
	got, created, err = repo.InsertIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "control", got.Variant, "first writer wins")

	missing, err := repo.Get(ctx, "exp-1", "u2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestAssignmentRepository_CountByVariant(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-1", "checkout")))
	repo := turso.NewAssignmentRepository(db)

	for i := 0; i < 5; i++ {
		variant := "control"
		if i%2 == 1 {
			variant = "variant_a"
		}
		_, _, err := repo.InsertIfAbsent(ctx, &domain.Assignment{
			ExperimentID: "exp-1", UserID: fmt.Sprintf("u%d", i), Variant: variant, AssignedAt: time.Now(),
		})
		require.NoError(t, err)
	}

	counts, err := repo.CountByVariant(ctx, "exp-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"control": 3, "variant_a": 2}, counts)
}

func seedAssignments(t *testing.T, db *sql.DB, experimentID string, users map[string]string) {
	t.Helper()
	repo := turso.NewAssignmentRepository(db)
	for user, variant := range users {
		_, _, err := repo.InsertIfAbsent(context.Background(), &domain.Assignment{
			ExperimentID: experimentID, UserID: user, Variant: variant, AssignedAt: time.Now(),
		})
		require.NoError(t, err)
	}
}

func TestEventRepository_ConversionsByVariant(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-1", "checkout")))
	seedAssignments(t, db, "exp-1", map[string]string{
		"u1": "control", "u2": "control", "u3": "variant_a", "u4": "variant_a",
	})

	repo := turso.NewEventRepository(db)
	events := []struct {
		user, variant, eventType string
		value                    float64
	}{
		{"u1", "control", "purchase", 10},
		{"u1", "control", "purchase", 5},
		{"u3", "variant_a", "purchase", 20},
		{"u4", "variant_a", "page_view", 1},
		{"u2", "variant_a", "purchase", 99},
	}
	for i, e := range events {
		require.NoError(t, repo.Append(ctx, &domain.Event{
			ID:           fmt.Sprintf("ev-%d", i),
			ExperimentID: "exp-1",
			UserID:       e.user,
			Variant:      e.variant,
			EventType:    e.eventType,
			EventValue:   e.value,
			CreatedAt:    time.Now(),
		}))
	}

	got, err := repo.ConversionsByVariant(ctx, "exp-1", "purchase")
	require.NoError(t, err)

	assert.Equal(t, int64(1), got["control"].Conversions, "repeat events count one user")
	assert.Equal(t, 15.0, got["control"].TotalValue)
	assert.Equal(t, int64(1), got["variant_a"].Conversions, "mismatched variant events are ignored")
	assert.Equal(t, 20.0, got["variant_a"].TotalValue)
}

func TestEventRepository_ListByExperiment(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-1", "checkout")))
	repo := turso.NewEventRepository(db)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Append(ctx, &domain.Event{
			ID:           fmt.Sprintf("ev-%d", i),
			ExperimentID: "exp-1",
			UserID:       "u1",
			Variant:      "control",
			EventType:    "purchase",
			EventValue:   1,
			SessionID:    ptr("s-1"),
			Metadata:     domain.Metadata{"source": "web"},
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	list, err := repo.ListByExperiment(ctx, "exp-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ev-2", list[0].ID)
	assert.Equal(t, "web", list[0].Metadata["source"])
	assert.Equal(t, "s-1", *list[0].SessionID)
}

func TestStatisticsRepository_Replace(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	require.NoError(t, turso.NewExperimentRepository(db).Create(ctx, newExperiment("exp-1", "checkout")))
	repo := turso.NewStatisticsRepository(db)

	now := time.Now().UTC()
	first := []domain.VariantStatistics{
		{Variant: "control", IsControl: true, TotalUsers: 10, HasData: true, CalculatedAt: now},
		{Variant: "variant_a", TotalUsers: 0, CalculatedAt: now},
	}
	require.NoError(t, repo.Replace(ctx, "exp-1", first))

	second := []domain.VariantStatistics{
		{Variant: "control", IsControl: true, TotalUsers: 20, Conversions: 2, ConversionRate: 0.1, HasData: true, CalculatedAt: now},
		{Variant: "variant_a", TotalUsers: 20, Conversions: 5, ConversionRate: 0.25, PValue: ptr(0.2), ZScore: ptr(1.2),
			RelativeLift: ptr(1.5), StatisticalSignificance: false, HasData: true, CalculatedAt: now},
	}
	require.NoError(t, repo.Replace(ctx, "exp-1", second))

	got, err := repo.ListByExperiment(ctx, "exp-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsControl)
	assert.Nil(t, got[0].PValue)
	assert.Equal(t, int64(20), got[0].TotalUsers)
	assert.Equal(t, 0.2, *got[1].PValue)
	assert.Equal(t, 1.5, *got[1].RelativeLift)

	require.NoError(t, repo.DeleteByExperiment(ctx, "exp-1"))
	got, err = repo.ListByExperiment(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExperimentDelete_Cascades(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repos := turso.NewRepositories(db)
	require.NoError(t, repos.Experiments.Create(ctx, newExperiment("exp-1", "checkout")))
	seedAssignments(t, db, "exp-1", map[string]string{"u1": "control"})

	require.NoError(t, repos.Experiments.Delete(ctx, "exp-1"))

	counts, err := repos.Assignments.CountByVariant(ctx, "exp-1")
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestFeatureRepository_Link(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	repos := turso.NewRepositories(db)
	require.NoError(t, repos.Experiments.Create(ctx, newExperiment("exp-1", "checkout")))

	now := time.Now()
	require.NoError(t, repos.Features.Create(ctx, &domain.Feature{ID: "f-1", Name: "new-checkout", Enabled: true, CreatedAt: now, UpdatedAt: now}))

	require.NoError(t, repos.Features.SetExperiment(ctx, "f-1", ptr("exp-1")))
	f, err := repos.Features.GetByName(ctx, "new-checkout")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.True(t, f.IsExperiment)
	assert.Equal(t, "exp-1", *f.ExperimentID)

	require.NoError(t, repos.Features.SetExperiment(ctx, "f-1", nil))
	f, err = repos.Features.GetByID(ctx, "f-1")
	require.NoError(t, err)
	assert.False(t, f.IsExperiment)
	assert.Nil(t, f.ExperimentID)

	list, err := repos.Features.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRepositories_AgainstLibsqlServer(t *testing.T) {
	db := testTursoDB(t)
	ctx := context.Background()
	repos := turso.NewRepositories(db)

	require.NoError(t, repos.Experiments.Create(ctx, newExperiment("exp-1", "checkout")))
	got, created, err := repos.Assignments.InsertIfAbsent(ctx, &domain.Assignment{
		ExperimentID: "exp-1", UserID: "u1", Variant: "control", AssignedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "control", got.Variant)
}
