package cli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emiliopalmerini/abacus/internal/domain"
)

func TestExperimentCreate_EvenSplitByDefault(t *testing.T) {
	a := useTestApp(t, testDB(t))

	out := mustRun(t, "experiment", "create", "checkout", "--metric", "purchase", "-d", "Bigger button")
	assert.Contains(t, out, "Created experiment checkout")
	assert.Contains(t, out, "control=50,treatment=50")

	exp, err := a.Services.Registry.GetByName(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, exp.Status)
	assert.Equal(t, "purchase", exp.SuccessMetric)
	assert.Equal(t, int64(100), exp.MinimumSampleSize)
	require.NotNil(t, exp.Description)
	assert.Equal(t, "Bigger button", *exp.Description)
	assert.Nil(t, exp.Hypothesis)
	assert.Nil(t, exp.BaselineRate)
}

func TestExperimentCreate_ExplicitSplit(t *testing.T) {
	a := useTestApp(t, testDB(t))

	mustRun(t, "exp", "create", "pricing", "-m", "signup",
		"--split", "control=50,cheap=25,premium=25", "--baseline", "0.1", "--mde", "0.2")

	exp, err := a.Services.Registry.GetByName(context.Background(), "pricing")
	require.NoError(t, err)
	assert.Equal(t, domain.TrafficSplit{"control": 50, "cheap": 25, "premium": 25}, exp.TrafficSplit)
	require.NotNil(t, exp.BaselineRate)
	assert.InDelta(t, 0.1, *exp.BaselineRate, 1e-9)
}

func TestExperimentCreate_Errors(t *testing.T) {
	useTestApp(t, testDB(t))

	_, err := run(t, "experiment", "create", "no-metric")
	require.Error(t, err)

	_, err = run(t, "experiment", "create", "bad", "-m", "purchase", "--split", "control=70,treatment=20")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	mustRun(t, "experiment", "create", "dup", "-m", "purchase")
	_, err = run(t, "experiment", "create", "dup", "-m", "purchase")
	require.Error(t, err)
}

func TestExperimentFlagsDoNotLeakBetweenRuns(t *testing.T) {
	a := useTestApp(t, testDB(t))

	mustRun(t, "experiment", "create", "first", "-m", "purchase", "--variants", "a,b,c", "-H", "c wins")
	mustRun(t, "experiment", "create", "second", "-m", "purchase")

	exp, err := a.Services.Registry.GetByName(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, domain.TrafficSplit{"control": 50, "treatment": 50}, exp.TrafficSplit)
	assert.Nil(t, exp.Hypothesis)
}

func TestExperimentList(t *testing.T) {
	useTestApp(t, testDB(t))

	out := mustRun(t, "experiment", "list")
	assert.Contains(t, out, "No experiments found")

	mustRun(t, "experiment", "create", "alpha", "-m", "purchase")
	mustRun(t, "experiment", "create", "beta", "-m", "signup")
	mustRun(t, "experiment", "start", "beta")

	out = mustRun(t, "experiment", "list")
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")

	out = mustRun(t, "experiment", "list", "--status", "running")
	assert.Contains(t, out, "beta")
	assert.NotContains(t, out, "alpha")

	_, err := run(t, "experiment", "list", "--status", "bogus")
	require.Error(t, err)
}

func TestExperimentShow(t *testing.T) {
	useTestApp(t, testDB(t))
	mustRun(t, "experiment", "create", "checkout", "-m", "purchase", "--min-sample", "250", "--duration", "14")

	out := mustRun(t, "experiment", "show", "checkout")
	assert.Contains(t, out, "Status:")
	assert.Contains(t, out, "draft")
	assert.Contains(t, out, "Control:")
	assert.Contains(t, out, "250 per variant")
	assert.Contains(t, out, "14 days")
	assert.Contains(t, out, "Planned sample:")
	assert.Contains(t, out, "500 users")

	_, err := run(t, "experiment", "show", "missing")
	require.Error(t, err)
	assert.True(t, domain.IsNotFound(err))
}

func TestExperimentLifecycle(t *testing.T) {
	a := useTestApp(t, testDB(t))
	ctx := context.Background()
	mustRun(t, "experiment", "create", "checkout", "-m", "purchase")

	out := mustRun(t, "experiment", "start", "checkout")
	assert.Contains(t, out, "Experiment checkout is now running")

	_, err := run(t, "experiment", "edit", "checkout", "--min-sample", "500")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	_, err = run(t, "experiment", "delete", "checkout")
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))

	out = mustRun(t, "experiment", "pause", "checkout")
	assert.Contains(t, out, "is now paused")

	mustRun(t, "experiment", "edit", "checkout", "--min-sample", "500", "--threshold", "0.99")
	exp, err := a.Services.Registry.GetByName(ctx, "checkout")
	require.NoError(t, err)
	assert.Equal(t, int64(500), exp.MinimumSampleSize)
	assert.InDelta(t, 0.99, exp.SignificanceThreshold, 1e-9)
	assert.Equal(t, "purchase", exp.SuccessMetric)

	out = mustRun(t, "experiment", "split", "checkout", "control=30,treatment=70")
	assert.Contains(t, out, "control=30,treatment=70")

	_, err = run(t, "experiment", "split", "checkout", "control=50,other=50")
	require.Error(t, err)

	mustRun(t, "experiment", "resume", "checkout")
	out = mustRun(t, "experiment", "stop", "checkout")
	assert.Contains(t, out, "is now stopped")

	exp, err = a.Services.Registry.GetByName(ctx, "checkout")
	require.NoError(t, err)
	assert.NotNil(t, exp.EndedAt)

	out = mustRun(t, "experiment", "delete", "checkout")
	assert.Contains(t, out, "Deleted experiment checkout")

	_, err = a.Services.Registry.GetByName(ctx, "checkout")
	assert.True(t, domain.IsNotFound(err))
}
