package service

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/permission"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

// AuthorizerOptions groups dependencies for Authorizer.
type AuthorizerOptions struct {
	Realms []ports.Realm            // Required: realms asked for grants
	Cache  ports.AuthorizationCache // Optional: per (realm, principal) grant cache
	Logger *slog.Logger             // Optional: structured logger
}

// Authorizer answers permission and role questions for a principal collection
// by taking the union of the grants of every realm that recognizes it.
//
// Cached grants are invalidated through Invalidate. An invalidation
// happens-before any later read: a key with loads in flight carries a
// generation counter and a loader only stores its result if the generation it
// saw before loading is still current. Keys are tracked only while loading.
type Authorizer struct {
	realms []ports.Realm
	cache  ports.AuthorizationCache
	logger *slog.Logger

	mu    sync.Mutex
	loads map[string]*loadState
}

type loadState struct {
	gen     uint64
	loaders int
}

var _ ports.AuthorizationInvalidator = (*Authorizer)(nil)

// NewAuthorizer constructs an Authorizer and hands its invalidator to every
// realm implementing ports.InvalidationAware.
func NewAuthorizer(opts AuthorizerOptions) (*Authorizer, error) {
	if err := validateRealms(opts.Realms); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Authorizer{
		realms: append([]ports.Realm(nil), opts.Realms...),
		cache:  opts.Cache,
		logger: logger.With("component", "authorizer"),
		loads:  make(map[string]*loadState),
	}
	for _, r := range a.realms {
		if aware, ok := r.(ports.InvalidationAware); ok {
			aware.SetInvalidator(a)
		}
	}
	return a, nil
}

func cacheKey(realm, principal string) string {
	return "authz:" + realm + ":" + principal
}

// Invalidate drops the cached grants of principal in realm.
func (a *Authorizer) Invalidate(ctx context.Context, realm, principal string) {
	key := cacheKey(realm, principal)

	if a.cache == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if st, ok := a.loads[key]; ok {
		st.gen++
	}
	if err := a.cache.Delete(ctx, key); err != nil {
		a.logger.WarnContext(ctx, "failed to evict cached authorization", "realm", realm, "error", err)
	}
}

// InvalidatePrincipals drops the cached grants of a principal collection in every realm.
func (a *Authorizer) InvalidatePrincipals(ctx context.Context, principals domainauth.PrincipalCollection) {
	if principals.IsEmpty() {
		return
	}
	for _, r := range a.realms {
		a.Invalidate(ctx, r.Name(), principals.AvailablePrincipal(r.Name()))
	}
}

// AuthorizationInfo returns the union of the grants of every realm that recognizes principals.
func (a *Authorizer) AuthorizationInfo(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	var union domainauth.AuthorizationInfo
	if principals.IsEmpty() {
		return union, nil
	}
	for _, r := range a.realms {
		info, err := a.realmInfo(ctx, r, principals)
		if err != nil {
			return domainauth.AuthorizationInfo{}, err
		}
		union = union.Union(info)
	}
	return union, nil
}

func (a *Authorizer) realmInfo(
	ctx context.Context,
	realm ports.Realm,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	name := realm.Name()
	key := cacheKey(name, principals.AvailablePrincipal(name))

	if a.cache != nil {
		info, ok, err := a.cache.Get(ctx, key)
		switch {
		case err != nil:
			a.logger.WarnContext(ctx, "authorization cache read failed", "realm", name, "error", err)
		case ok:
			return info, nil
		}
		st, gen := a.beginLoad(key)
		defer a.endLoad(key, st)
		info, err = a.load(ctx, realm, principals)
		if err != nil {
			return domainauth.AuthorizationInfo{}, err
		}
		// Held across Set so a concurrent Invalidate either sees the entry or
		// makes this store a no-op.
		a.mu.Lock()
		if st.gen == gen {
			if err := a.cache.Set(ctx, key, info); err != nil {
				a.logger.WarnContext(ctx, "authorization cache write failed", "realm", name, "error", err)
			}
		}
		a.mu.Unlock()
		return info, nil
	}
	return a.load(ctx, realm, principals)
}

func (a *Authorizer) beginLoad(key string) (*loadState, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.loads[key]
	if !ok {
		st = &loadState{}
		a.loads[key] = st
	}
	st.loaders++
	return st, st.gen
}

func (a *Authorizer) endLoad(key string, st *loadState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	st.loaders--
	if st.loaders == 0 {
		delete(a.loads, key)
	}
}

func (a *Authorizer) load(
	ctx context.Context,
	realm ports.Realm,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	name := realm.Name()
	info, err := realm.AuthorizationInfo(ctx, principals)
	if err != nil {
		if apperrors.IsUnknownAccount(err) {
			return domainauth.AuthorizationInfo{}, nil
		}
		if isContextCancellation(err) {
			return domainauth.AuthorizationInfo{}, contextError(err)
		}
		return domainauth.AuthorizationInfo{}, apperrors.Wrapf(err, apperrors.ErrCodeInternal,
			"load authorization from realm %s", name)
	}
	return info, nil
}

// IsPermitted reports whether any realm grants a permission implying perm.
// Empty principals are permitted nothing.
func (a *Authorizer) IsPermitted(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
	perm string,
) (bool, error) {
	requested, err := permission.Parse(perm)
	if err != nil {
		return false, err
	}
	if principals.IsEmpty() {
		return false, nil
	}
	info, err := a.AuthorizationInfo(ctx, principals)
	if err != nil {
		return false, err
	}
	return info.IsPermitted(requested), nil
}

// IsPermittedAll reports whether every perm is permitted.
func (a *Authorizer) IsPermittedAll(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
	perms ...string,
) (bool, error) {
	requested, err := permission.ParseAll(perms)
	if err != nil {
		return false, err
	}
	if principals.IsEmpty() {
		return false, nil
	}
	info, err := a.AuthorizationInfo(ctx, principals)
	if err != nil {
		return false, err
	}
	for _, p := range requested {
		if !info.IsPermitted(p) {
			return false, nil
		}
	}
	return true, nil
}

// CheckPermission fails with unauthenticated for empty principals and with
// unauthorized when perm is not permitted.
func (a *Authorizer) CheckPermission(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
	perm string,
) error {
	if principals.IsEmpty() {
		if _, err := permission.Parse(perm); err != nil {
			return err
		}
		return apperrors.New(apperrors.ErrCodeUnauthenticated, "subject is not authenticated")
	}
	ok, err := a.IsPermitted(ctx, principals, perm)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Newf(apperrors.ErrCodeUnauthorized, "subject is not permitted %q", perm)
	}
	return nil
}

// HasRole reports whether any realm grants role.
func (a *Authorizer) HasRole(ctx context.Context, principals domainauth.PrincipalCollection, role string) (bool, error) {
	return a.HasAllRoles(ctx, principals, role)
}

// HasAllRoles reports whether every role is granted. No roles means true for
// a non-empty principal collection.
func (a *Authorizer) HasAllRoles(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
	roles ...string,
) (bool, error) {
	if principals.IsEmpty() {
		return false, nil
	}
	info, err := a.AuthorizationInfo(ctx, principals)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if !info.HasRole(r) {
			return false, nil
		}
	}
	return true, nil
}

// CheckRole fails with unauthenticated for empty principals and with
// unauthorized when role is missing.
func (a *Authorizer) CheckRole(ctx context.Context, principals domainauth.PrincipalCollection, role string) error {
	if principals.IsEmpty() {
		return apperrors.New(apperrors.ErrCodeUnauthenticated, "subject is not authenticated")
	}
	ok, err := a.HasRole(ctx, principals, role)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Newf(apperrors.ErrCodeUnauthorized, "subject does not have role %q", role)
	}
	return nil
}
