package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

// SecurityManagerOptions groups dependencies for SecurityManager.
type SecurityManagerOptions struct {
	Authenticator *RealmAuthenticator // Required
	Authorizer    *Authorizer         // Required
	Sessions      *SessionManager     // Required
	Logger        *slog.Logger        // Optional: structured logger
}

// SecurityManager is the facade an embedding application calls: it logs a
// token in to a session and answers permission and role questions for the
// principals bound to that session.
type SecurityManager struct {
	authn    *RealmAuthenticator
	authz    *Authorizer
	sessions *SessionManager
	logger   *slog.Logger

	logoutAware []ports.LogoutAware
	destroyers  []ports.Destroyer
}

// LoginResult describes a successful login.
type LoginResult struct {
	SessionID  string
	NewSession bool
	Principals domainauth.PrincipalCollection
	// Failures lists realms that rejected the token although login succeeded.
	Failures []apperrors.RealmFailure
}

// NewSecurityManager constructs a SecurityManager. Optional realm
// capabilities are discovered once here.
func NewSecurityManager(opts SecurityManagerOptions) (*SecurityManager, error) {
	if opts.Authenticator == nil {
		return nil, errors.New("RealmAuthenticator is required")
	}
	if opts.Authorizer == nil {
		return nil, errors.New("Authorizer is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionManager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &SecurityManager{
		authn:    opts.Authenticator,
		authz:    opts.Authorizer,
		sessions: opts.Sessions,
		logger:   logger.With("component", "security_manager"),
	}

	seen := make(map[string]struct{})
	for _, r := range append(opts.Authenticator.Realms(), opts.Authorizer.realms...) {
		if _, dup := seen[r.Name()]; dup {
			continue
		}
		seen[r.Name()] = struct{}{}
		if la, ok := r.(ports.LogoutAware); ok {
			m.logoutAware = append(m.logoutAware, la)
		}
		if d, ok := r.(ports.Destroyer); ok {
			m.destroyers = append(m.destroyers, d)
		}
	}
	return m, nil
}

// Sessions exposes the session manager for session-level operations.
func (m *SecurityManager) Sessions() *SessionManager { return m.sessions }

// Login authenticates token and binds the resulting principals to sessionID,
// or to a new session when sessionID is empty. A supplied session is
// validated before any realm is consulted.
func (m *SecurityManager) Login(ctx context.Context, sessionID string, token domainauth.Token) (LoginResult, error) {
	if sessionID != "" {
		if err := m.sessions.Touch(ctx, sessionID); err != nil {
			return LoginResult{}, err
		}
	}

	attempt, err := m.authn.Attempt(ctx, token)
	if err != nil {
		m.logger.InfoContext(ctx, "login failed", "session_id", sessionID, "error_code", apperrors.GetCode(err))
		return LoginResult{}, err
	}

	res := LoginResult{
		SessionID:  sessionID,
		Principals: attempt.Info.Principals,
		Failures:   attempt.Failures,
	}
	if sessionID == "" {
		if res.SessionID, err = m.sessions.Start(ctx, token.Host()); err != nil {
			return LoginResult{}, err
		}
		res.NewSession = true
	}
	if err := m.sessions.Bind(ctx, res.SessionID, attempt.Info.Principals); err != nil {
		return LoginResult{}, err
	}

	m.logger.InfoContext(ctx, "login succeeded",
		"session_id", res.SessionID,
		"principal", res.Principals.Primary(),
		"realms", res.Principals.RealmNames(),
	)
	return res, nil
}

// Logout stops the session, drops cached authorization for its principals
// and notifies logout-aware realms.
func (m *SecurityManager) Logout(ctx context.Context, sessionID string) error {
	principals, err := m.sessions.stopReturningPrincipals(ctx, sessionID)
	if err != nil {
		return err
	}
	if principals.IsEmpty() {
		return nil
	}
	m.authz.InvalidatePrincipals(ctx, principals)
	for _, la := range m.logoutAware {
		la.OnLogout(ctx, principals)
	}
	m.logger.InfoContext(ctx, "logout", "session_id", sessionID, "principal", principals.Primary())
	return nil
}

// Principals returns the principals bound to the session.
func (m *SecurityManager) Principals(ctx context.Context, sessionID string) (domainauth.PrincipalCollection, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	return principals, err
}

// AuthorizationInfo returns the union of the grants every realm holds for the
// session's principals. Unauthenticated sessions hold nothing.
func (m *SecurityManager) AuthorizationInfo(ctx context.Context, sessionID string) (domainauth.AuthorizationInfo, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return domainauth.AuthorizationInfo{}, err
	}
	return m.authz.AuthorizationInfo(ctx, principals)
}

// IsPermitted reports whether the session's subject is permitted perm.
// Unauthenticated sessions are permitted nothing.
func (m *SecurityManager) IsPermitted(ctx context.Context, sessionID, perm string) (bool, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return m.authz.IsPermitted(ctx, principals, perm)
}

// IsPermittedAll reports whether the session's subject is permitted every perm.
func (m *SecurityManager) IsPermittedAll(ctx context.Context, sessionID string, perms ...string) (bool, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return m.authz.IsPermittedAll(ctx, principals, perms...)
}

// CheckPermission fails with unauthenticated or unauthorized unless perm is permitted.
func (m *SecurityManager) CheckPermission(ctx context.Context, sessionID, perm string) error {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.authz.CheckPermission(ctx, principals, perm)
}

// HasRole reports whether the session's subject has role.
func (m *SecurityManager) HasRole(ctx context.Context, sessionID, role string) (bool, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return m.authz.HasRole(ctx, principals, role)
}

// HasAllRoles reports whether the session's subject has every role.
func (m *SecurityManager) HasAllRoles(ctx context.Context, sessionID string, roles ...string) (bool, error) {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return m.authz.HasAllRoles(ctx, principals, roles...)
}

// CheckRole fails with unauthenticated or unauthorized unless role is held.
func (m *SecurityManager) CheckRole(ctx context.Context, sessionID, role string) error {
	principals, _, err := m.sessions.access(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.authz.CheckRole(ctx, principals, role)
}

// Destroy tears down every realm implementing ports.Destroyer and returns
// their joined errors.
func (m *SecurityManager) Destroy(ctx context.Context) error {
	var errs []error
	for _, d := range m.destroyers {
		if err := d.Destroy(ctx); err != nil {
			errs = append(errs, fmt.Errorf("destroy realm: %w", err))
		}
	}
	if len(errs) > 0 {
		m.logger.WarnContext(ctx, "realm teardown reported errors", "count", len(errs))
	}
	return errors.Join(errs...)
}
