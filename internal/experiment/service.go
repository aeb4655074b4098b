// Package experiment implements the experimentation engine services: the
// registry, variant assignment, event ingestion, the statistics engine,
// adaptive allocation, the decision policy and feature-flag linkage.
package experiment

import (
	"log/slog"
	"time"

	"github.com/emiliopalmerini/abacus/internal/ports"
	"github.com/emiliopalmerini/abacus/internal/stats"
)

// Stores are the persistence ports the services depend on.
type Stores struct {
	Experiments ports.ExperimentRepository
	Assignments ports.AssignmentRepository
	Events      ports.EventRepository
	Statistics  ports.StatisticsRepository
	Features    ports.FeatureRepository
}

// Options configures the services. Zero values pick sensible defaults.
type Options struct {
	Logger          *slog.Logger
	Metrics         ports.MetricsExporter
	Now             func() time.Time
	MonteCarloDraws int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.MonteCarloDraws <= 0 {
		o.MonteCarloDraws = stats.DefaultDraws
	}
	return o
}

// Services bundles every engine service built over the same stores.
type Services struct {
	Registry   *Registry
	Assigner   *Assigner
	Tracker    *Tracker
	Engine     *Engine
	Allocator  *Allocator
	Decisions  *DecisionPolicy
	Features   *Features
	Calculator *Calculator
}

// New wires the services together.
func New(s Stores, opts Options) *Services {
	opts = opts.withDefaults()

	registry := NewRegistry(s.Experiments, opts)
	engine := NewEngine(registry, s.Assignments, s.Events, s.Statistics, opts)
	decisions := NewDecisionPolicy(registry, engine, opts)

	return &Services{
		Registry:   registry,
		Assigner:   NewAssigner(registry, s.Features, s.Assignments, opts),
		Tracker:    NewTracker(registry, s.Assignments, s.Events, opts),
		Engine:     engine,
		Allocator:  NewAllocator(registry, engine, opts),
		Decisions:  decisions,
		Features:   NewFeatures(registry, s.Features, opts),
		Calculator: NewCalculator(engine, decisions),
	}
}
