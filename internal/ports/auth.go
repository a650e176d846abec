package ports

// Package ports defines interfaces (hexagonal ports) for the security kernel.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/model"
)

// Realm is a pluggable identity source. A realm that does not recognize a
// principal returns an unknown_account error from both Authenticate and
// AuthorizationInfo; the authorizer skips it.
type Realm interface {
	// Name is unique among the realms wired into one authenticator.
	Name() string
	// Supports reports whether the realm understands the token type.
	Supports(token domainauth.Token) bool
	// Authenticate verifies the token and returns the principals it establishes.
	Authenticate(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error)
	// AuthorizationInfo returns the grants for an authenticated identity.
	AuthorizationInfo(ctx context.Context, principals domainauth.PrincipalCollection) (domainauth.AuthorizationInfo, error)
}

// AuthorizationInvalidator drops cached authorization data for a principal of a realm.
type AuthorizationInvalidator interface {
	Invalidate(ctx context.Context, realm, principal string)
}

// InvalidationAware realms receive the authorizer's invalidator so they can
// fire it when roles or permissions change.
type InvalidationAware interface {
	SetInvalidator(inv AuthorizationInvalidator)
}

// LogoutAware realms are told when a session bound to their principals logs out.
type LogoutAware interface {
	OnLogout(ctx context.Context, principals domainauth.PrincipalCollection)
}

// Destroyer releases realm resources (connections, key refresh loops).
type Destroyer interface {
	Destroy(ctx context.Context) error
}

// CredentialsMatcher compares submitted secret material with what a realm stores.
type CredentialsMatcher interface {
	Matches(submitted, stored []byte) bool
}

// AuthorizationCache stores AuthorizationInfo keyed by realm and principal.
type AuthorizationCache interface {
	Get(ctx context.Context, key string) (domainauth.AuthorizationInfo, bool, error)
	Set(ctx context.Context, key string, info domainauth.AuthorizationInfo) error
	Delete(ctx context.Context, key string) error
}

// AccountStore persists accounts for account-backed realms.
type AccountStore interface {
	GetAccount(ctx context.Context, username string) (model.Account, error)
	CreateAccount(ctx context.Context, req model.CreateAccountRequest) (model.Account, error)
	SetLocked(ctx context.Context, username string, locked bool) error
	// RecordFailedAttempt increments and returns the failed-attempt counter.
	RecordFailedAttempt(ctx context.Context, username string) (int, error)
	ResetFailedAttempts(ctx context.Context, username string) error
	GrantRole(ctx context.Context, username, role string) error
	RevokeRole(ctx context.Context, username, role string) error
	GrantPermission(ctx context.Context, username, perm string) error
	GrantRolePermission(ctx context.Context, role, perm string) error
	// Grants returns the roles and the permission strings (direct plus role-derived).
	Grants(ctx context.Context, username string) (roles []string, perms []string, err error)
}

// BeginInput carries inputs for initiating a redirect-based login.
type BeginInput struct {
	// Prompt is passed to the provider ("login", "consent", "select_account").
	// Empty uses "select_account".
	Prompt string
}

// BeginOutput is what the embedder needs to redirect the user and later build
// an AuthorizationCodeToken.
type BeginOutput struct {
	AuthURL string
	State   string
	Nonce   string
}

// RedirectRealm is implemented by realms whose login starts with a browser redirect.
type RedirectRealm interface {
	Realm
	Begin(ctx context.Context, in BeginInput) (BeginOutput, error)
}

// RoleMapper maps provider groups to application roles, and roles to grants.
type RoleMapper interface {
	Roles(groups []string) []string
	// Grants resolves groups plus roles asserted directly by a token.
	Grants(groups []string, extraRoles ...string) domainauth.AuthorizationInfo
}

