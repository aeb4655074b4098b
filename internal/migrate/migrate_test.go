package migrate_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emiliopalmerini/abacus/internal/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

func TestSplitSQL(t *testing.T) {
	got := migrate.SplitSQL("CREATE TABLE a (x INT);\n\n ;DROP TABLE b;")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(got), got)
	}
	if got[1] != "DROP TABLE b" {
		t.Errorf("unexpected statement %q", got[1])
	}
}

func TestRunner_LoadOrdersVersions(t *testing.T) {
	r := migrate.NewRunner(openDB(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	all, err := r.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(all) < 4 {
		t.Fatalf("expected at least 4 migrations, got %d", len(all))
	}
	for i, m := range all {
		if m.Version != i+1 {
			t.Errorf("expected version %d at index %d, got %d", i+1, i, m.Version)
		}
		if m.DownSQL == "" {
			t.Errorf("migration %d has no down script", m.Version)
		}
	}
}

func TestRunner_UpAndDown(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	r := migrate.NewRunner(db, slog.New(slog.NewTextHandler(io.Discard, nil)))

	version, err := r.To(ctx, -1)
	if err != nil {
		t.Fatalf("migrate up failed: %v", err)
	}
	if version != 4 {
		t.Fatalf("expected version 4, got %d", version)
	}
	for _, table := range []string{"experiments", "assignments", "events", "statistics", "features"} {
		if !tableExists(t, db, table) {
			t.Errorf("expected table %s after migrating up", table)
		}
	}

	version, err = r.To(ctx, 2)
	if err != nil {
		t.Fatalf("migrate down failed: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version 2, got %d", version)
	}
	if tableExists(t, db, "statistics") || tableExists(t, db, "features") {
		t.Errorf("expected statistics and features dropped")
	}
	if !tableExists(t, db, "events") {
		t.Errorf("expected events to survive")
	}

	current, dirty, err := r.CurrentVersion(ctx)
	if err != nil || dirty || current != 2 {
		t.Fatalf("unexpected state: version=%d dirty=%v err=%v", current, dirty, err)
	}

	if _, err := r.To(ctx, 0); err != nil {
		t.Fatalf("rollback all failed: %v", err)
	}
	if tableExists(t, db, "experiments") {
		t.Errorf("expected experiments dropped")
	}
}
