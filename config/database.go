package config

import (
	"fmt"
	"strings"
	"time"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"gatekeeper"`
	Password string `env:"PASSWORD"                envDefault:"gatekeeper"`
	Name     string `env:"NAME"                    envDefault:"gatekeeper"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// CacheMode selects the AuthorizationInfo cache backend.
type CacheMode string

const (
	CacheModeNone  CacheMode = "none"
	CacheModeLocal CacheMode = "local"
	CacheModeRedis CacheMode = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for CacheMode.
func (m *CacheMode) UnmarshalText(text []byte) error {
	v := CacheMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case CacheModeNone, CacheModeLocal, CacheModeRedis:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid CacheMode: %q (valid options: none, local, redis)", string(text))
	}
}

// CacheConfig configures the authorization cache.
type CacheConfig struct {
	Mode      CacheMode     `env:"AUTHZ_CACHE_MODE"       envDefault:"local"`
	TTL       time.Duration `env:"AUTHZ_CACHE_TTL"        envDefault:"5m"`
	Capacity  int           `env:"AUTHZ_CACHE_CAPACITY"   envDefault:"10000"`
	KeyPrefix string        `env:"AUTHZ_CACHE_KEY_PREFIX" envDefault:"gatekeeper:"`
}

// Sanitize applies defaults for unset or invalid values.
func (c *CacheConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = CacheModeLocal
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.Capacity <= 0 {
		c.Capacity = 10000
	}
}
