package otel

import (
	"context"
	"log/slog"

	"github.com/emiliopalmerini/abacus/internal/config"
	"github.com/emiliopalmerini/abacus/internal/ports"
)

// New returns the OTLP exporter when enabled, falling back to a no-op
// exporter when disabled or when the collector cannot be set up.
func New(ctx context.Context, cfg config.OTel, logger *slog.Logger) ports.MetricsExporter {
	if !cfg.Enabled {
		return NewNoOpExporter()
	}
	exp, err := NewExporter(ctx, cfg)
	if err != nil {
		logger.Warn("metrics export disabled", "endpoint", cfg.Endpoint, "error", err)
		return NewNoOpExporter()
	}
	logger.Info("exporting metrics", "endpoint", cfg.Endpoint)
	return exp
}
