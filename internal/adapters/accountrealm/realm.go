// Package accountrealm implements a username/password realm over a
// ports.AccountStore. The same realm serves the in-memory store seeded from
// configuration and the Postgres account repository.
package accountrealm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/target/gatekeeper/internal/clock"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/model"
	"github.com/target/gatekeeper/internal/domain/permission"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/observability/notify"
	"github.com/target/gatekeeper/internal/ports"
)

var (
	_ ports.Realm             = (*Realm)(nil)
	_ ports.InvalidationAware = (*Realm)(nil)
)

// Options configures a Realm.
type Options struct {
	Name    string                   // Required
	Store   ports.AccountStore       // Required
	Matcher ports.CredentialsMatcher // Required
	// MaxAttempts is the number of consecutive failures after which the
	// account reports excessive_attempts. Zero disables the limit.
	MaxAttempts int
	Clock       clock.Clock  // Optional: defaults to clock.Real
	Logger      *slog.Logger // Optional
	Alerts      Alerter      // Optional: told when an account reaches MaxAttempts
}

// Alerter receives security events raised by the realm. Implementations must
// not block the login path.
type Alerter interface {
	NotifyAsync(ctx context.Context, event notify.SecurityEvent)
}

// Realm authenticates UsernamePasswordTokens against stored accounts and
// serves their role and permission grants.
type Realm struct {
	name        string
	store       ports.AccountStore
	matcher     ports.CredentialsMatcher
	maxAttempts int
	clock       clock.Clock
	logger      *slog.Logger
	alerts      Alerter

	mu          sync.RWMutex
	invalidator ports.AuthorizationInvalidator
}

// New creates an account realm.
func New(opts Options) (*Realm, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("realm name is required")
	}
	if opts.Store == nil {
		return nil, errors.New("AccountStore is required")
	}
	if opts.Matcher == nil {
		return nil, errors.New("CredentialsMatcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Realm{
		name:        opts.Name,
		store:       opts.Store,
		matcher:     opts.Matcher,
		maxAttempts: max(opts.MaxAttempts, 0),
		clock:       clock.OrReal(opts.Clock),
		logger:      logger.With("component", "account_realm", "realm", opts.Name),
		alerts:      opts.Alerts,
	}, nil
}

func (r *Realm) Name() string { return r.name }

func (r *Realm) Supports(token domainauth.Token) bool {
	return token != nil && token.Type() == domainauth.TokenUsernamePassword
}

// Authenticate checks, in order: account exists, not locked, attempt allowance
// not exhausted, credentials match, credentials not expired. Expiry is only
// reported to callers who presented the right password.
func (r *Realm) Authenticate(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error) {
	username := token.Principal()
	if username == "" {
		return domainauth.AuthenticationInfo{}, apperrors.UnknownAccount(username)
	}

	acct, err := r.store.GetAccount(ctx, username)
	if err != nil {
		return domainauth.AuthenticationInfo{}, err
	}
	if acct.Locked {
		return domainauth.AuthenticationInfo{}, apperrors.LockedAccount(username)
	}
	if r.maxAttempts > 0 && acct.FailedAttempts >= r.maxAttempts {
		return domainauth.AuthenticationInfo{}, apperrors.ExcessiveAttempts(username)
	}

	if !r.matcher.Matches(token.Credentials(), acct.Credentials) {
		return domainauth.AuthenticationInfo{}, r.recordFailure(ctx, username, token.Host())
	}
	if acct.CredentialsExpired(r.clock.Now()) {
		return domainauth.AuthenticationInfo{}, apperrors.ExpiredCredentials(username)
	}

	if acct.FailedAttempts > 0 {
		if resetErr := r.store.ResetFailedAttempts(ctx, username); resetErr != nil {
			r.logger.WarnContext(ctx, "failed to reset failed attempts", "username", username, "error", resetErr)
		}
	}
	return domainauth.AuthenticationInfo{
		Principals:  domainauth.NewPrincipalCollection(r.name, acct.Username),
		Credentials: acct.Credentials,
	}, nil
}

func (r *Realm) recordFailure(ctx context.Context, username, host string) error {
	attempts, err := r.store.RecordFailedAttempt(ctx, username)
	if err != nil {
		// A counter that cannot be bumped must not hide the mismatch.
		r.logger.WarnContext(ctx, "failed to record failed attempt", "username", username, "error", err)
		return apperrors.IncorrectCredentials(username)
	}
	if r.maxAttempts > 0 && attempts >= r.maxAttempts {
		r.logger.InfoContext(ctx, "account reached failed attempt limit", "username", username, "attempts", attempts)
		if r.alerts != nil && attempts == r.maxAttempts {
			r.alerts.NotifyAsync(ctx, notify.SecurityEvent{
				Kind:       notify.EventAttemptLimitReached,
				Realm:      r.name,
				Principal:  username,
				Host:       host,
				Detail:     fmt.Sprintf("%d consecutive failed logins; further attempts are refused", attempts),
				OccurredAt: r.clock.Now(),
				Metadata:   map[string]string{"attempts": strconv.Itoa(attempts)},
			})
		}
	}
	return apperrors.IncorrectCredentials(username)
}

// AuthorizationInfo loads roles and permissions (direct plus role-derived).
func (r *Realm) AuthorizationInfo(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	username := principals.AvailablePrincipal(r.name)
	roles, raw, err := r.store.Grants(ctx, username)
	if err != nil {
		return domainauth.AuthorizationInfo{}, err
	}
	perms, err := permission.ParseAll(raw)
	if err != nil {
		return domainauth.AuthorizationInfo{}, fmt.Errorf("stored permission for %q: %w", username, err)
	}
	return domainauth.NewAuthorizationInfo(roles, perms), nil
}

func (r *Realm) SetInvalidator(inv ports.AuthorizationInvalidator) {
	r.mu.Lock()
	r.invalidator = inv
	r.mu.Unlock()
}

func (r *Realm) invalidate(ctx context.Context, username string) {
	r.mu.RLock()
	inv := r.invalidator
	r.mu.RUnlock()
	if inv != nil {
		inv.Invalidate(ctx, r.name, username)
	}
}

// CreateAccount stores a new account. Credentials must already be in the form
// the realm's matcher expects.
func (r *Realm) CreateAccount(ctx context.Context, req model.CreateAccountRequest) (model.Account, error) {
	if err := req.Validate(); err != nil {
		return model.Account{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	return r.store.CreateAccount(ctx, req)
}

// SetLocked locks or unlocks an account. Unlocking also clears the failed-attempt counter.
func (r *Realm) SetLocked(ctx context.Context, username string, locked bool) error {
	if err := r.store.SetLocked(ctx, username, locked); err != nil {
		return err
	}
	if !locked {
		return r.store.ResetFailedAttempts(ctx, username)
	}
	return nil
}

// GrantRole adds role to the account and drops its cached authorization.
func (r *Realm) GrantRole(ctx context.Context, username, role string) error {
	if strings.TrimSpace(role) == "" {
		return apperrors.ValidationField("role", "role must not be empty")
	}
	if err := r.store.GrantRole(ctx, username, role); err != nil {
		return err
	}
	r.invalidate(ctx, username)
	return nil
}

// RevokeRole removes role from the account and drops its cached authorization.
func (r *Realm) RevokeRole(ctx context.Context, username, role string) error {
	if err := r.store.RevokeRole(ctx, username, role); err != nil {
		return err
	}
	r.invalidate(ctx, username)
	return nil
}

// GrantPermission adds a direct permission and drops the account's cached authorization.
func (r *Realm) GrantPermission(ctx context.Context, username, perm string) error {
	p, err := permission.Parse(perm)
	if err != nil {
		return err
	}
	if err := r.store.GrantPermission(ctx, username, p.String()); err != nil {
		return err
	}
	r.invalidate(ctx, username)
	return nil
}

// GrantRolePermission adds perm to every holder of role. Holders' cached
// grants refresh when their cache entries expire or they log out.
func (r *Realm) GrantRolePermission(ctx context.Context, role, perm string) error {
	if strings.TrimSpace(role) == "" {
		return apperrors.ValidationField("role", "role must not be empty")
	}
	p, err := permission.Parse(perm)
	if err != nil {
		return err
	}
	return r.store.GrantRolePermission(ctx, role, p.String())
}
