// Package bootstrap wires configuration, connections, realms and the security
// services into a running gatekeeper stack.
package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/gatekeeper/config"
)

// InitLogger installs a JSON slog logger at level as the default logger.
func InitLogger(level slog.Level) *slog.Logger {
	return initLogger(os.Stdout, level)
}

func initLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables, reading a .env
// file first when one exists.
func LoadConfig() (config.AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects configurations that cannot produce a working stack.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if len(cfg.Authc.Realms) == 0 {
		return errors.New("no realms enabled (AUTHC_REALMS)")
	}

	var errs []error
	names := make(map[string]config.RealmKind, len(cfg.Authc.Realms))
	for _, kind := range cfg.Authc.Realms {
		name := realmName(cfg.Authc, kind)
		if prev, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("realms %s and %s share the name %q", prev, kind, name))
		}
		names[name] = kind
	}

	if cfg.Authc.Enabled(config.RealmJWT) {
		jwt := cfg.Authc.JWT
		if (jwt.Secret == "") == (jwt.JWKSURL == "") {
			errs = append(errs, errors.New("jwt realm requires exactly one of JWT_REALM_SECRET or JWT_REALM_JWKS_URL"))
		}
	}
	if cfg.Authc.Enabled(config.RealmOIDC) {
		o := cfg.Authc.OIDC
		if o.DiscoveryURL == "" || o.ClientID == "" || o.ClientSecret == "" {
			errs = append(errs, errors.New(
				"oidc realm requires OIDC_REALM_DISCOVERY_URL, OIDC_REALM_CLIENT_ID and OIDC_REALM_CLIENT_SECRET"))
		}
	}
	if cfg.Authc.Enabled(config.RealmStatic) && cfg.Authc.Static.Matcher == config.MatcherPlain && !cfg.IsDev {
		errs = append(errs, errors.New("static realm: plain matcher is only allowed in development mode"))
	}
	return errors.Join(errs...)
}

func realmName(c config.AuthcConfig, kind config.RealmKind) string {
	switch kind {
	case config.RealmStatic:
		return c.Static.Name
	case config.RealmPostgres:
		return c.Postgres.Name
	case config.RealmJWT:
		return c.JWT.Name
	case config.RealmOIDC:
		return c.OIDC.Name
	default:
		return string(kind)
	}
}
