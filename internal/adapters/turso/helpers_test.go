package turso_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/abacus/internal/domain"
	"github.com/emiliopalmerini/abacus/internal/migrate"
)

// testDB opens an in-memory libsql database with all migrations applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to enable foreign keys: %v", err)
	}

	ctx := context.Background()
	if err := migrate.RunAll(ctx, db); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testTursoDB starts a libsql-server container. Slow; only runs when
// ABACUS_TURSO_CONTAINER=1.
func testTursoDB(t *testing.T) *sql.DB {
	t.Helper()

	if os.Getenv("ABACUS_TURSO_CONTAINER") != "1" {
		t.Skip("set ABACUS_TURSO_CONTAINER=1 to run libsql-server integration tests")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "ghcr.io/tursodatabase/libsql-server:latest",
		ExposedPorts: []string{"8080/tcp"},
		WaitingFor:   wait.ForHTTP("/health").WithPort("8080/tcp").WithStartupTimeout(30 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Turso container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mappedPort, err := container.MappedPort(ctx, "8080")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	db, err := sql.Open("libsql", fmt.Sprintf("http://%s:%s", host, mappedPort.Port()))
	if err != nil {
		t.Fatalf("Failed to connect to Turso: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping Turso: %v", err)
	}
	if err := migrate.RunAll(ctx, db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func ptr[T any](v T) *T {
	return &v
}

func newExperiment(id, name string) *domain.Experiment {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Experiment{
		ID:                    id,
		Name:                  name,
		Description:           ptr("checkout button colour"),
		SuccessMetric:         "purchase",
		TrafficSplit:          domain.TrafficSplit{"control": 50, "variant_a": 50},
		MinimumSampleSize:     500,
		SignificanceThreshold: 0.95,
		TestDurationDays:      14,
		Status:                domain.StatusDraft,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}
