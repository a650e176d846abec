package auth

// Package auth contains simple hand-written test doubles for the security ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"sync"
	"sync/atomic"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.Realm              = (*StubRealm)(nil)
	_ ports.InvalidationAware  = (*StubRealm)(nil)
	_ ports.LogoutAware        = (*StubRealm)(nil)
	_ ports.Destroyer          = (*StubRealm)(nil)
	_ ports.AuthorizationCache = (*MemoryAuthorizationCache)(nil)
	_ ports.RoleMapper         = StaticRoleMapper{}
)

// StubRealm is a configurable Realm. By default it supports every token type
// listed in Types, authenticates any principal present in Grants and returns
// those grants for authorization.
type StubRealm struct {
	RealmName string
	Types     []domainauth.TokenType
	Grants    map[string]domainauth.AuthorizationInfo

	AuthenticateFunc      func(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error)
	AuthorizationInfoFunc func(ctx context.Context, principals domainauth.PrincipalCollection) (domainauth.AuthorizationInfo, error)

	AuthenticateCalls atomic.Int32
	AuthzCalls        atomic.Int32
	LogoutCalls       atomic.Int32
	Destroyed         atomic.Bool
	DestroyErr        error

	mu          sync.Mutex
	invalidator ports.AuthorizationInvalidator
}

// NewStubRealm creates a StubRealm supporting username/password tokens.
func NewStubRealm(name string) *StubRealm {
	return &StubRealm{
		RealmName: name,
		Types:     []domainauth.TokenType{domainauth.TokenUsernamePassword},
		Grants:    make(map[string]domainauth.AuthorizationInfo),
	}
}

func (s *StubRealm) Name() string { return s.RealmName }

func (s *StubRealm) Supports(token domainauth.Token) bool {
	for _, t := range s.Types {
		if token.Type() == t {
			return true
		}
	}
	return false
}

func (s *StubRealm) Authenticate(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error) {
	s.AuthenticateCalls.Add(1)
	if s.AuthenticateFunc != nil {
		return s.AuthenticateFunc(ctx, token)
	}
	if _, ok := s.grant(token.Principal()); !ok {
		return domainauth.AuthenticationInfo{}, errors.UnknownAccount(token.Principal())
	}
	return domainauth.AuthenticationInfo{
		Principals: domainauth.NewPrincipalCollection(s.RealmName, token.Principal()),
	}, nil
}

func (s *StubRealm) AuthorizationInfo(
	ctx context.Context,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	s.AuthzCalls.Add(1)
	if s.AuthorizationInfoFunc != nil {
		return s.AuthorizationInfoFunc(ctx, principals)
	}
	principal := principals.AvailablePrincipal(s.RealmName)
	info, ok := s.grant(principal)
	if !ok {
		return domainauth.AuthorizationInfo{}, errors.UnknownAccount(principal)
	}
	return info, nil
}

func (s *StubRealm) grant(principal string) (domainauth.AuthorizationInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.Grants[principal]
	return info, ok
}

func (s *StubRealm) SetInvalidator(inv ports.AuthorizationInvalidator) {
	s.mu.Lock()
	s.invalidator = inv
	s.mu.Unlock()
}

// Invalidator returns the invalidator handed over by the authorizer.
func (s *StubRealm) Invalidator() ports.AuthorizationInvalidator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidator
}

// Regrant replaces principal's grants and fires the invalidator when one is set.
func (s *StubRealm) Regrant(ctx context.Context, principal string, info domainauth.AuthorizationInfo) {
	s.mu.Lock()
	s.Grants[principal] = info
	inv := s.invalidator
	s.mu.Unlock()
	if inv != nil {
		inv.Invalidate(ctx, s.RealmName, principal)
	}
}

func (s *StubRealm) OnLogout(context.Context, domainauth.PrincipalCollection) {
	s.LogoutCalls.Add(1)
}

func (s *StubRealm) Destroy(context.Context) error {
	s.Destroyed.Store(true)
	return s.DestroyErr
}

// MemoryAuthorizationCache is a map-backed AuthorizationCache that counts hits.
type MemoryAuthorizationCache struct {
	mu    sync.Mutex
	items map[string]domainauth.AuthorizationInfo
	Hits  int
}

// NewMemoryAuthorizationCache creates an empty cache.
func NewMemoryAuthorizationCache() *MemoryAuthorizationCache {
	return &MemoryAuthorizationCache{items: make(map[string]domainauth.AuthorizationInfo)}
}

func (m *MemoryAuthorizationCache) Get(_ context.Context, key string) (domainauth.AuthorizationInfo, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.items[key]
	if ok {
		m.Hits++
	}
	return info, ok, nil
}

func (m *MemoryAuthorizationCache) Set(_ context.Context, key string, info domainauth.AuthorizationInfo) error {
	m.mu.Lock()
	m.items[key] = info
	m.mu.Unlock()
	return nil
}

func (m *MemoryAuthorizationCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of cached entries.
func (m *MemoryAuthorizationCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// StaticRoleMapper maps groups to roles by exact name.
type StaticRoleMapper struct {
	Mapping map[string]string
}

// Grants returns the mapped roles with no permissions.
func (m StaticRoleMapper) Grants(groups []string, extraRoles ...string) domainauth.AuthorizationInfo {
	return domainauth.NewAuthorizationInfo(append(m.Roles(groups), extraRoles...), nil)
}

func (m StaticRoleMapper) Roles(groups []string) []string {
	var out []string
	for _, g := range groups {
		if r, ok := m.Mapping[g]; ok {
			out = append(out, r)
		}
	}
	return out
}
