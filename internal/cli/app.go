package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	otelexporter "github.com/emiliopalmerini/abacus/internal/adapters/otel"
	"github.com/emiliopalmerini/abacus/internal/adapters/turso"
	"github.com/emiliopalmerini/abacus/internal/config"
	"github.com/emiliopalmerini/abacus/internal/experiment"
	"github.com/emiliopalmerini/abacus/internal/logger"
	"github.com/emiliopalmerini/abacus/internal/ports"
)

// AppContext holds all shared dependencies for CLI commands.
type AppContext struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sql.DB
	Repos    *turso.Repositories
	Metrics  ports.MetricsExporter
	Services *experiment.Services

	closers []func() error
}

// NewAppContext connects to the database and builds every service from cfg.
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	log, err := logger.New(os.Stderr, cfg.Log)
	if err != nil {
		return nil, err
	}

	db, err := turso.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	metrics := otelexporter.New(ctx, cfg.OTel, log)

	a := newAppContext(cfg, db, log, metrics)
	a.closers = append(a.closers,
		func() error { return metrics.Close(context.Background()) },
		db.Close,
	)
	return a, nil
}

// newAppContext wires services over an already open database. Closing the
// result does not close db.
func newAppContext(cfg *config.Config, db *sql.DB, log *slog.Logger, metrics ports.MetricsExporter) *AppContext {
	repos := turso.NewRepositories(db)
	services := experiment.New(experiment.Stores{
		Experiments: repos.Experiments,
		Assignments: repos.Assignments,
		Events:      repos.Events,
		Statistics:  repos.Statistics,
		Features:    repos.Features,
	}, experiment.Options{
		Logger:          log,
		Metrics:         metrics,
		MonteCarloDraws: cfg.Stats.MonteCarloDraws,
	})

	return &AppContext{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Repos:    repos,
		Metrics:  metrics,
		Services: services,
	}
}

// Close releases all resources held by the AppContext.
func (a *AppContext) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
