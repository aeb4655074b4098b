// Package migrate applies the embedded schema migrations with a dirty-flag guard.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emiliopalmerini/abacus/migrations"
)

// Migration is a single versioned schema change with up and down SQL.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

var upPattern = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)

// Runner applies migrations from a filesystem to a database.
type Runner struct {
	db     *sql.DB
	fsys   fs.FS
	logger *slog.Logger
}

// NewRunner creates a Runner over the embedded migrations.
func NewRunner(db *sql.DB, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, fsys: migrations.FS, logger: logger}
}

// EnsureTable creates the schema_migrations table if it doesn't exist.
func (r *Runner) EnsureTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// CurrentVersion returns the applied version and whether the last run failed midway.
func (r *Runner) CurrentVersion(ctx context.Context) (int, bool, error) {
	var version, dirty int
	err := r.db.QueryRowContext(ctx, `SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&version, &dirty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty == 1, nil
}

func (r *Runner) setVersion(ctx context.Context, version int, dirty bool) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		return err
	}
	if version == 0 && !dirty {
		return nil
	}
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt)
	return err
}

// Load reads all migration files and returns them sorted by version.
func (r *Runner) Load() ([]Migration, error) {
	var result []Migration

	err := fs.WalkDir(r.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		matches := upPattern.FindStringSubmatch(path.Base(p))
		if matches == nil {
			return nil
		}

		version, _ := strconv.Atoi(matches[1])
		upSQL, err := fs.ReadFile(r.fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		downSQL, err := fs.ReadFile(r.fsys, strings.TrimSuffix(p, ".up.sql")+".down.sql")
		if err != nil {
			downSQL = nil
		}

		result = append(result, Migration{
			Version: version,
			Name:    matches[2],
			UpSQL:   string(upSQL),
			DownSQL: string(downSQL),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Version < result[j].Version
	})
	return result, nil
}

// Apply executes a single migration in the given direction.
func (r *Runner) Apply(ctx context.Context, m Migration, up bool) error {
	direction, content, target := "up", m.UpSQL, m.Version
	if !up {
		direction, content, target = "down", m.DownSQL, m.Version-1
	}

	r.logger.Info("applying migration", "version", m.Version, "name", m.Name, "direction", direction)

	if err := r.setVersion(ctx, m.Version, true); err != nil {
		return fmt.Errorf("failed to set dirty flag: %w", err)
	}

	for _, stmt := range SplitSQL(content) {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration %d %s: %w\nSQL: %s", m.Version, direction, err, stmt)
		}
	}

	if err := r.setVersion(ctx, target, false); err != nil {
		return fmt.Errorf("failed to clear dirty flag: %w", err)
	}
	return nil
}

// SplitSQL splits a script on semicolons, dropping empty statements.
func SplitSQL(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// To migrates up or down until the schema is at target. A negative target means latest.
func (r *Runner) To(ctx context.Context, target int) (int, error) {
	if err := r.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	current, dirty, err := r.CurrentVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return current, fmt.Errorf("database is in dirty state at version %d", current)
	}

	all, err := r.Load()
	if err != nil {
		return current, fmt.Errorf("failed to load migrations: %w", err)
	}
	if target < 0 && len(all) > 0 {
		target = all[len(all)-1].Version
	}

	switch {
	case target > current:
		for _, m := range all {
			if m.Version <= current || m.Version > target {
				continue
			}
			if err := r.Apply(ctx, m, true); err != nil {
				return current, err
			}
			current = m.Version
		}
	case target < current:
		for i := len(all) - 1; i >= 0; i-- {
			m := all[i]
			if m.Version > current || m.Version <= target {
				continue
			}
			if m.DownSQL == "" {
				return current, fmt.Errorf("no down migration for version %d", m.Version)
			}
			if err := r.Apply(ctx, m, false); err != nil {
				return current, err
			}
			current = m.Version - 1
		}
	default:
		r.logger.Debug("schema up to date", "version", current)
	}
	return current, nil
}

// RunAll applies every pending migration on db.
func RunAll(ctx context.Context, db *sql.DB) error {
	_, err := NewRunner(db, slog.Default()).To(ctx, -1)
	return err
}
