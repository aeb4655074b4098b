// Package config loads abacus settings from ABACUS_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"

	"github.com/emiliopalmerini/abacus/internal/util"
)

const prefix = "ABACUS"

// Database holds libsql connection settings. An empty URL selects a local
// file under the XDG data directory.
type Database struct {
	URL       string `envconfig:"DATABASE_URL"`
	AuthToken string `envconfig:"AUTH_TOKEN"`
}

// Log controls the slog handler.
type Log struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// OTel holds metric exporter settings.
type OTel struct {
	Enabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	Endpoint string `envconfig:"OTEL_ENDPOINT"`
	Insecure bool   `envconfig:"OTEL_INSECURE" default:"false"`
}

// Stats tunes the statistics engine.
type Stats struct {
	MonteCarloDraws int     `envconfig:"MONTE_CARLO_DRAWS" default:"20000"`
	BaseAlpha       float64 `envconfig:"BASE_ALPHA" default:"0.05"`
}

// Config is the full application configuration.
type Config struct {
	Database Database `ignored:"true"`
	Log      Log      `ignored:"true"`
	OTel     OTel     `ignored:"true"`
	Stats    Stats    `ignored:"true"`
	Port     int      `envconfig:"PORT" default:"8080"`
}

// Load reads configuration from the environment and fills derived defaults.
func Load() (*Config, error) {
	var cfg Config
	for _, target := range []any{&cfg.Database, &cfg.Log, &cfg.OTel, &cfg.Stats, &cfg} {
		if err := envconfig.Process(prefix, target); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if cfg.Database.URL == "" {
		url, err := util.DefaultDatabaseURL()
		if err != nil {
			return nil, err
		}
		cfg.Database.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid ABACUS_PORT %d", c.Port)
	}
	if c.Stats.MonteCarloDraws <= 0 {
		return fmt.Errorf("invalid ABACUS_MONTE_CARLO_DRAWS %d", c.Stats.MonteCarloDraws)
	}
	if c.Stats.BaseAlpha <= 0 || c.Stats.BaseAlpha >= 1 {
		return fmt.Errorf("invalid ABACUS_BASE_ALPHA %v", c.Stats.BaseAlpha)
	}
	if c.OTel.Enabled && c.OTel.Endpoint == "" {
		return fmt.Errorf("ABACUS_OTEL_ENDPOINT is required when ABACUS_OTEL_ENABLED is set")
	}
	return nil
}

// Remote reports whether the database URL points at a libsql server.
func (d Database) Remote() bool {
	return d.URL != "" && !strings.HasPrefix(d.URL, "file:") && d.URL != ":memory:"
}
