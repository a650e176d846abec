package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - authc.go: realm selection, authentication strategy, role mapping
//   - session.go: session timeout and expiry sweep
//   - database.go: Postgres, Redis and authorization cache
//   - observability.go: metrics and logging
type AppConfig struct {
	// IsDev relaxes production guardrails (plain-text static realm passwords).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Authentication configuration
	Authc AuthcConfig

	// Session lifecycle configuration
	Session SessionConfig

	// Database and cache configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()

	c.Authc.Sanitize()
	c.Session.Sanitize()
	c.Cache.Sanitize()
	c.Observability.Sanitize()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// UsesPostgres reports whether any configured component needs a database connection.
func (c *AppConfig) UsesPostgres() bool {
	return c.Authc.Enabled(RealmPostgres)
}

// UsesRedis reports whether any configured component needs a Redis connection.
func (c *AppConfig) UsesRedis() bool {
	return c.Cache.Mode == CacheModeRedis
}
