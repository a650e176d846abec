package config

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse() error = %v", err)
	}
	cfg.Sanitize()

	if cfg.Authc.Strategy != StrategyAtLeastOneSuccessful {
		t.Errorf("Strategy = %q, want %q", cfg.Authc.Strategy, StrategyAtLeastOneSuccessful)
	}
	if !reflect.DeepEqual(cfg.Authc.Realms, []RealmKind{RealmStatic}) {
		t.Errorf("Realms = %v, want [static]", cfg.Authc.Realms)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("Session.Timeout = %v, want 30m", cfg.Session.Timeout)
	}
	if cfg.Session.SweepInterval != time.Minute {
		t.Errorf("Session.SweepInterval = %v, want 1m", cfg.Session.SweepInterval)
	}
	if cfg.Session.TerminalRetention != 5*time.Minute {
		t.Errorf("Session.TerminalRetention = %v, want 5m", cfg.Session.TerminalRetention)
	}
	if cfg.Cache.Mode != CacheModeLocal {
		t.Errorf("Cache.Mode = %q, want local", cfg.Cache.Mode)
	}
	if cfg.Authc.Static.Matcher != MatcherBcrypt {
		t.Errorf("Static.Matcher = %q, want bcrypt", cfg.Authc.Static.Matcher)
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.Observability.LogLevel)
	}
	if cfg.UsesPostgres() || cfg.UsesRedis() {
		t.Errorf("defaults should not need Postgres or Redis")
	}
}

func TestAppConfig_ParseAuthcEnv(t *testing.T) {
	t.Setenv("AUTHC_STRATEGY", "First_Successful")
	t.Setenv("AUTHC_REALMS", "postgres,jwt,postgres,oidc")
	t.Setenv("STATIC_REALM_ROLES", "admin;auditor")
	t.Setenv("STATIC_REALM_PERMISSIONS", "docs:*;printer:print")
	t.Setenv("JWT_REALM_SECRET", "s3cr3t")
	t.Setenv("JWT_REALM_ISSUER", "https://issuer.example.com")
	t.Setenv("OIDC_REALM_CLIENT_ID", "app-client")
	t.Setenv("OIDC_REALM_DISCOVERY_URL", " https://login.example.com/.well-known/openid-configuration ")
	t.Setenv("OIDC_REALM_SCOPE", "openid profile")
	t.Setenv("AUTHC_GROUP_ROLES", "admins=admin;devs=user")
	t.Setenv("AUTHC_ROLE_PERMISSIONS", "admin=*;user=docs:read printer:print")
	t.Setenv("AUTHZ_CACHE_MODE", "redis")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("env.Parse() error = %v", err)
	}
	cfg.Sanitize()

	a := cfg.Authc
	if a.Strategy != StrategyFirstSuccessful {
		t.Errorf("Strategy = %q", a.Strategy)
	}
	if !reflect.DeepEqual(a.Realms, []RealmKind{RealmPostgres, RealmJWT, RealmOIDC}) {
		t.Errorf("Realms = %v", a.Realms)
	}
	if !a.Enabled(RealmJWT) || a.Enabled(RealmStatic) {
		t.Errorf("Enabled() mismatch for %v", a.Realms)
	}
	if !reflect.DeepEqual(a.Static.Roles, []string{"admin", "auditor"}) {
		t.Errorf("Static.Roles = %v", a.Static.Roles)
	}
	if !reflect.DeepEqual(a.Static.Permissions, []string{"docs:*", "printer:print"}) {
		t.Errorf("Static.Permissions = %v", a.Static.Permissions)
	}
	if a.JWT.Secret != "s3cr3t" || a.JWT.RolesPath != "roles" {
		t.Errorf("JWT config = %+v", a.JWT)
	}
	if a.OIDC.DiscoveryURL != "https://login.example.com/.well-known/openid-configuration" {
		t.Errorf("OIDC.DiscoveryURL = %q", a.OIDC.DiscoveryURL)
	}
	if !reflect.DeepEqual(a.OIDC.Scopes(), []string{"openid", "profile"}) {
		t.Errorf("OIDC.Scopes() = %v", a.OIDC.Scopes())
	}
	if got := a.RoleMapping.RolesByGroup(); !reflect.DeepEqual(got, map[string]string{"admins": "admin", "devs": "user"}) {
		t.Errorf("RolesByGroup() = %v", got)
	}
	wantPerms := map[string][]string{"admin": {"*"}, "user": {"docs:read", "printer:print"}}
	if got := a.RoleMapping.PermissionsByRole(); !reflect.DeepEqual(got, wantPerms) {
		t.Errorf("PermissionsByRole() = %v", got)
	}
	if !cfg.UsesPostgres() || !cfg.UsesRedis() {
		t.Errorf("expected Postgres and Redis to be required")
	}
}

func TestEnumUnmarshalText_Invalid(t *testing.T) {
	var s AuthStrategy
	if err := s.UnmarshalText([]byte("majority")); err == nil {
		t.Error("expected error for unknown strategy")
	}
	var k RealmKind
	if err := k.UnmarshalText([]byte("ldap")); err == nil {
		t.Error("expected error for unknown realm")
	}
	var m MatcherKind
	if err := m.UnmarshalText([]byte("md5")); err == nil {
		t.Error("expected error for unknown matcher")
	}
	var c CacheMode
	if err := c.UnmarshalText([]byte("memcached")); err == nil {
		t.Error("expected error for unknown cache mode")
	}
}

func TestAppConfig_InvalidStrategyFailsParse(t *testing.T) {
	t.Setenv("AUTHC_STRATEGY", "majority")

	var cfg AppConfig
	if err := env.Parse(&cfg); err == nil {
		t.Fatal("expected env.Parse() to reject an unknown strategy")
	}
}

func TestSessionConfig_Sanitize(t *testing.T) {
	cfg := SessionConfig{Timeout: 0, SweepInterval: -time.Second, TerminalRetention: -1}
	cfg.Sanitize()
	if cfg.Timeout != defaultSessionTimeout || cfg.SweepInterval != defaultSweepInterval ||
		cfg.TerminalRetention != defaultTerminalRetention {
		t.Errorf("Sanitize() = %+v", cfg)
	}

	never := SessionConfig{Timeout: -1, SweepInterval: time.Second}
	never.Sanitize()
	if never.Timeout != -1 {
		t.Errorf("negative timeout should be preserved, got %v", never.Timeout)
	}
}

func TestAuthcConfig_SanitizeDefaults(t *testing.T) {
	cfg := AuthcConfig{Static: StaticRealmConfig{Name: "  ", MaxAttempts: -3}}
	cfg.Sanitize()
	if cfg.Strategy != StrategyAtLeastOneSuccessful {
		t.Errorf("Strategy = %q", cfg.Strategy)
	}
	if cfg.Static.Name != "static" || cfg.Static.MaxAttempts != 0 {
		t.Errorf("Static = %+v", cfg.Static)
	}
	if cfg.JWT.Name != "jwt" || cfg.JWT.GrantTTL != time.Hour || cfg.JWT.GrantCapacity != 10000 {
		t.Errorf("JWT = %+v", cfg.JWT)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: "   ", Prefix: " "}
	cfg.Sanitize()
	if cfg.IsEnabled() {
		t.Error("metrics should be disabled without an address")
	}
	if cfg.Prefix != defaultMetricsPrefix {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " 127.0.0.1:8125 "}
	cfg.Sanitize()
	if !cfg.IsEnabled() || cfg.StatsdAddress != "127.0.0.1:8125" {
		t.Errorf("Sanitize() = %+v", cfg)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	off := ObservabilityNotificationsConfig{
		Slack:     SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example.com/x"},
		PagerDuty: PagerDutyNotificationConfig{Enabled: true, RoutingKey: "key"},
	}
	off.Sanitize()
	if off.Slack.Enabled || off.PagerDuty.Enabled {
		t.Errorf("sinks must be disabled when notifications are off: %+v", off)
	}
	if off.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", off.Timeout)
	}

	on := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -2,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: "  "},
		PagerDuty:  PagerDutyNotificationConfig{Enabled: true, RoutingKey: " key ", Source: " "},
	}
	on.Sanitize()
	if on.Slack.Enabled {
		t.Error("slack without a webhook must be disabled")
	}
	if !on.PagerDuty.Enabled || on.PagerDuty.RoutingKey != "key" || on.PagerDuty.Source != "gatekeeper" {
		t.Errorf("PagerDuty = %+v", on.PagerDuty)
	}
	if on.RetryLimit != 0 {
		t.Errorf("RetryLimit = %d, want 0", on.RetryLimit)
	}
	if on.Slack.Username != "gatekeeper" {
		t.Errorf("Slack.Username = %q", on.Slack.Username)
	}
}
