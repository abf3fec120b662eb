// Package config reads service configuration from MOTOTUMEN_* environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const envPrefix = "MOTOTUMEN_"

// Granter attribution modes for role and permission changes.
const (
	// AttributionPlaceholder records PlaceholderGranterID for every change,
	// matching what existing clients write.
	AttributionPlaceholder = "placeholder"
	// AttributionActor records the acting user's id.
	AttributionActor = "actor"
)

// Config holds all service configuration.
type Config struct {
	// Server
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:":8080"`
	GRPCAddr        string        `env:"GRPC_ADDR"        envDefault:":9090"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES"   envDefault:"1048576"`

	// Database; empty DSN runs on the in-memory store.
	PGDSN          string        `env:"PG_DSN"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnLifetime time.Duration `env:"DB_CONN_LIFETIME"  envDefault:"30m"`
	MigrateOnStart bool          `env:"MIGRATE_ON_START"  envDefault:"false"`

	// Auth
	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"mototumen"`

	// Authorization
	CatalogPath          string `env:"CATALOG_PATH"`
	GranterAttribution   string `env:"GRANTER_ATTRIBUTION"    envDefault:"placeholder"`
	PlaceholderGranterID string `env:"PLACEHOLDER_GRANTER_ID" envDefault:"1"`
	// BootstrapCEOID seeds a ceo member into the in-memory store.
	BootstrapCEOID       string `env:"BOOTSTRAP_CEO_ID"`

	// Events; empty URL keeps moderation events in-process.
	RedisURL      string `env:"REDIS_URL"`
	EventsChannel string `env:"EVENTS_CHANNEL" envDefault:"mototumen:moderation"`

	// HTTP edge
	CORSOrigins    []string `env:"CORS_ORIGINS"     envSeparator:"," envDefault:"*"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS"   envDefault:"20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST" envDefault:"40"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file (missing files are ignored) and parses the
// environment.
func Load(dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tags cannot express.
func (c *Config) Validate() error {
	c.GranterAttribution = strings.ToLower(strings.TrimSpace(c.GranterAttribution))
	switch c.GranterAttribution {
	case AttributionPlaceholder:
		if strings.TrimSpace(c.PlaceholderGranterID) == "" {
			return errors.New("config: placeholder granter id is required in placeholder mode")
		}
	case AttributionActor:
	default:
		return fmt.Errorf("config: unknown granter attribution %q", c.GranterAttribution)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("config: rate limit must be positive")
	}
	return nil
}
