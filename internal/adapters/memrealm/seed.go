package memrealm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/domain/model"
	"github.com/target/gatekeeper/internal/domain/permission"
)

// SeedOptions describes the configuration-driven contents of a static realm.
type SeedOptions struct {
	Account config.StaticRealmConfig
	// RolePermissions grants permissions to roles (AUTHC_ROLE_PERMISSIONS).
	RolePermissions map[string][]string
	// AllowPlaintext permits a plain matcher; only development mode sets it.
	AllowPlaintext bool
	Logger         *slog.Logger
}

// Seed loads the configured account and role permissions into s.
// An empty password skips the account but still seeds role permissions.
func Seed(ctx context.Context, s *Store, opts SeedOptions) error {
	for role, perms := range opts.RolePermissions {
		if _, err := permission.ParseAll(perms); err != nil {
			return fmt.Errorf("seed role %q: %w", role, err)
		}
		for _, p := range perms {
			if err := s.GrantRolePermission(ctx, role, p); err != nil {
				return fmt.Errorf("seed role %q: %w", role, err)
			}
		}
	}

	cfg := opts.Account
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Password == "" {
		logger.WarnContext(ctx, "static realm has no password configured; account not seeded",
			"realm", cfg.Name, "username", cfg.Username)
		return nil
	}
	if cfg.Matcher == config.MatcherPlain && !opts.AllowPlaintext {
		return errors.New("static realm: plain matcher is only allowed in development mode")
	}

	if _, err := permission.ParseAll(cfg.Permissions); err != nil {
		return fmt.Errorf("seed account %q: %w", cfg.Username, err)
	}
	if _, err := s.CreateAccount(ctx, model.CreateAccountRequest{
		Username:    cfg.Username,
		Credentials: []byte(cfg.Password),
	}); err != nil {
		return fmt.Errorf("seed account %q: %w", cfg.Username, err)
	}
	for _, r := range cfg.Roles {
		if err := s.GrantRole(ctx, cfg.Username, r); err != nil {
			return fmt.Errorf("seed role %q: %w", r, err)
		}
	}
	for _, p := range cfg.Permissions {
		if err := s.GrantPermission(ctx, cfg.Username, p); err != nil {
			return fmt.Errorf("seed permission %q: %w", p, err)
		}
	}
	logger.InfoContext(ctx, "seeded static realm", "realm", cfg.Name, "username", cfg.Username, "roles", cfg.Roles)
	return nil
}
