package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AuthStrategy selects how results from several realms combine.
type AuthStrategy string

const (
	// StrategyFirstSuccessful consults realms in order and stops at the first success.
	StrategyFirstSuccessful AuthStrategy = "first_successful"
	// StrategyAtLeastOneSuccessful consults every supporting realm and merges the successes.
	StrategyAtLeastOneSuccessful AuthStrategy = "at_least_one_successful"
	// StrategyAllSuccessful requires every supporting realm to succeed.
	StrategyAllSuccessful AuthStrategy = "all_successful"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthStrategy.
func (s *AuthStrategy) UnmarshalText(text []byte) error {
	v := AuthStrategy(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StrategyFirstSuccessful, StrategyAtLeastOneSuccessful, StrategyAllSuccessful:
		*s = v
		return nil
	default:
		return fmt.Errorf(
			"invalid AuthStrategy: %q (valid options: first_successful, at_least_one_successful, all_successful)",
			string(text),
		)
	}
}

// RealmKind names a realm implementation that can be wired from configuration.
type RealmKind string

const (
	RealmStatic   RealmKind = "static"
	RealmPostgres RealmKind = "postgres"
	RealmJWT      RealmKind = "jwt"
	RealmOIDC     RealmKind = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for RealmKind.
func (k *RealmKind) UnmarshalText(text []byte) error {
	v := RealmKind(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case RealmStatic, RealmPostgres, RealmJWT, RealmOIDC:
		*k = v
		return nil
	default:
		return fmt.Errorf("invalid RealmKind: %q (valid options: static, postgres, jwt, oidc)", string(text))
	}
}

// MatcherKind selects how submitted passwords are compared with stored credentials.
type MatcherKind string

const (
	MatcherPlain  MatcherKind = "plain"
	MatcherBcrypt MatcherKind = "bcrypt"
)

// UnmarshalText implements encoding.TextUnmarshaler for MatcherKind.
func (m *MatcherKind) UnmarshalText(text []byte) error {
	v := MatcherKind(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case MatcherPlain, MatcherBcrypt:
		*m = v
		return nil
	default:
		return fmt.Errorf("invalid MatcherKind: %q (valid options: plain, bcrypt)", string(text))
	}
}

// AuthcConfig groups all authentication-related configuration.
type AuthcConfig struct {
	// Strategy decides how multi-realm results combine.
	Strategy AuthStrategy `env:"AUTHC_STRATEGY" envDefault:"at_least_one_successful"`

	// Realms lists the realms to wire, in consultation order.
	Realms []RealmKind `env:"AUTHC_REALMS" envDefault:"static" envSeparator:","`

	Static   StaticRealmConfig   `envPrefix:"STATIC_REALM_"`
	Postgres PostgresRealmConfig `envPrefix:"PG_REALM_"`
	JWT      JWTRealmConfig      `envPrefix:"JWT_REALM_"`
	OIDC     OIDCRealmConfig     `envPrefix:"OIDC_REALM_"`

	// Role mapping shared by token realms.
	RoleMapping RoleMappingConfig
}

// Sanitize removes duplicate realms and applies per-realm defaults.
func (c *AuthcConfig) Sanitize() {
	if c.Strategy == "" {
		c.Strategy = StrategyAtLeastOneSuccessful
	}
	seen := make([]RealmKind, 0, len(c.Realms))
	for _, r := range c.Realms {
		if r != "" && !slices.Contains(seen, r) {
			seen = append(seen, r)
		}
	}
	c.Realms = seen

	c.Static.sanitize()
	c.Postgres.sanitize()
	c.JWT.sanitize()
	c.OIDC.sanitize()
}

// Enabled reports whether kind is part of the realm list.
func (c *AuthcConfig) Enabled(kind RealmKind) bool {
	return slices.Contains(c.Realms, kind)
}

// StaticRealmConfig seeds the in-memory realm with a single account.
type StaticRealmConfig struct {
	Name        string      `env:"NAME"         envDefault:"static"`
	Username    string      `env:"USERNAME"     envDefault:"admin"`
	Password    string      `env:"PASSWORD"`
	Matcher     MatcherKind `env:"MATCHER"      envDefault:"bcrypt"`
	Roles       []string    `env:"ROLES"        envDefault:"admin"  envSeparator:";"`
	Permissions []string    `env:"PERMISSIONS"                      envSeparator:";"`
	MaxAttempts int         `env:"MAX_ATTEMPTS" envDefault:"5"`
}

func (c *StaticRealmConfig) sanitize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = string(RealmStatic)
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
}

// PostgresRealmConfig configures the account realm backed by Postgres.
type PostgresRealmConfig struct {
	Name        string      `env:"NAME"         envDefault:"accounts"`
	Matcher     MatcherKind `env:"MATCHER"      envDefault:"bcrypt"`
	MaxAttempts int         `env:"MAX_ATTEMPTS" envDefault:"5"`
}

func (c *PostgresRealmConfig) sanitize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = "accounts"
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
}

// JWTRealmConfig configures the bearer-token realm.
// Exactly one of Secret (HMAC) or JWKSURL should be set.
type JWTRealmConfig struct {
	Name            string        `env:"NAME"             envDefault:"jwt"`
	Secret          string        `env:"SECRET"`
	JWKSURL         string        `env:"JWKS_URL"`
	Issuer          string        `env:"ISSUER"`
	Audience        string        `env:"AUDIENCE"`
	Leeway          time.Duration `env:"LEEWAY"           envDefault:"30s"`
	RolesPath       string        `env:"ROLES_PATH"       envDefault:"roles"`
	PermissionsPath string        `env:"PERMISSIONS_PATH" envDefault:"permissions"`
	GroupsPath      string        `env:"GROUPS_PATH"`
	GrantTTL        time.Duration `env:"GRANT_TTL"        envDefault:"1h"`
	GrantCapacity   int           `env:"GRANT_CAPACITY"   envDefault:"10000"`
}

func (c *JWTRealmConfig) sanitize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = string(RealmJWT)
	}
	c.JWKSURL = strings.TrimSpace(c.JWKSURL)
	if c.Leeway < 0 {
		c.Leeway = 0
	}
	if c.GrantTTL <= 0 {
		c.GrantTTL = time.Hour
	}
	if c.GrantCapacity <= 0 {
		c.GrantCapacity = 10000
	}
}

// OIDCRealmConfig contains OAuth/OIDC configuration for the authorization-code realm.
type OIDCRealmConfig struct {
	Name         string `env:"NAME"          envDefault:"oidc"`
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email groups"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

func (c *OIDCRealmConfig) sanitize() {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = string(RealmOIDC)
	}
	c.DiscoveryURL = strings.TrimSpace(c.DiscoveryURL)
}

// Scopes splits Scope on whitespace.
func (c *OIDCRealmConfig) Scopes() []string {
	return strings.Fields(c.Scope)
}

// RoleMappingConfig maps identity-provider groups to roles and roles to permissions.
//
//	AUTHC_GROUP_ROLES="admins=admin;devs=user"
//	AUTHC_ROLE_PERMISSIONS="admin=*;user=docs:read printer:print"
//
// Permission lists are whitespace separated.
type RoleMappingConfig struct {
	GroupRoles      map[string]string `env:"AUTHC_GROUP_ROLES"      envSeparator:";" envKeyValSeparator:"="`
	RolePermissions map[string]string `env:"AUTHC_ROLE_PERMISSIONS" envSeparator:";" envKeyValSeparator:"="`
}

// PermissionsByRole splits each role's permission list.
func (c RoleMappingConfig) PermissionsByRole() map[string][]string {
	out := make(map[string][]string, len(c.RolePermissions))
	for role, perms := range c.RolePermissions {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		out[role] = append(out[role], strings.Fields(perms)...)
	}
	return out
}

// RolesByGroup returns the trimmed group to role mapping.
func (c RoleMappingConfig) RolesByGroup() map[string]string {
	out := make(map[string]string, len(c.GroupRoles))
	for group, role := range c.GroupRoles {
		group, role = strings.TrimSpace(group), strings.TrimSpace(role)
		if group != "" && role != "" {
			out[group] = role
		}
	}
	return out
}
