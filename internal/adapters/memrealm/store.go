// Package memrealm provides an in-memory ports.AccountStore for static and
// development realms.
package memrealm

import (
	"context"
	"slices"
	"sync"

	"github.com/target/gatekeeper/internal/clock"
	"github.com/target/gatekeeper/internal/domain/model"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

var _ ports.AccountStore = (*Store)(nil)

type account struct {
	model.Account
	roles []string
	perms []string
}

// Store keeps accounts, role grants and role permissions in memory.
// It is safe for concurrent use.
type Store struct {
	clock clock.Clock

	mu        sync.RWMutex
	accounts  map[string]*account
	rolePerms map[string][]string
}

// NewStore creates an empty store. A nil clock uses the system clock.
func NewStore(c clock.Clock) *Store {
	return &Store{
		clock:     clock.OrReal(c),
		accounts:  make(map[string]*account),
		rolePerms: make(map[string][]string),
	}
}

func (s *Store) lookup(username string) (*account, error) {
	a, ok := s.accounts[username]
	if !ok {
		return nil, apperrors.UnknownAccount(username)
	}
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, username string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(username)
	if err != nil {
		return model.Account{}, err
	}
	out := a.Account
	out.Credentials = slices.Clone(a.Credentials)
	return out, nil
}

func (s *Store) CreateAccount(_ context.Context, req model.CreateAccountRequest) (model.Account, error) {
	if err := req.Validate(); err != nil {
		return model.Account{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, err.Error())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Username]; exists {
		return model.Account{}, &apperrors.AppError{
			Code:    apperrors.ErrCodeConflict,
			Message: "account already exists",
			Field:   "username",
		}
	}
	now := s.clock.Now()
	a := &account{Account: model.Account{
		Username:            req.Username,
		Credentials:         slices.Clone(req.Credentials),
		Locked:              req.Locked,
		CredentialsExpireAt: req.CredentialsExpireAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}}
	s.accounts[req.Username] = a
	out := a.Account
	out.Credentials = slices.Clone(a.Credentials)
	return out, nil
}

// update applies fn to username's account under the write lock.
func (s *Store) update(username string, fn func(a *account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(username)
	if err != nil {
		return err
	}
	fn(a)
	a.UpdatedAt = s.clock.Now()
	return nil
}

func (s *Store) SetLocked(_ context.Context, username string, locked bool) error {
	return s.update(username, func(a *account) { a.Locked = locked })
}

func (s *Store) RecordFailedAttempt(_ context.Context, username string) (int, error) {
	var n int
	err := s.update(username, func(a *account) {
		a.FailedAttempts++
		n = a.FailedAttempts
	})
	return n, err
}

func (s *Store) ResetFailedAttempts(_ context.Context, username string) error {
	return s.update(username, func(a *account) { a.FailedAttempts = 0 })
}

func (s *Store) GrantRole(_ context.Context, username, role string) error {
	return s.update(username, func(a *account) {
		if !slices.Contains(a.roles, role) {
			a.roles = append(a.roles, role)
		}
	})
}

func (s *Store) RevokeRole(_ context.Context, username, role string) error {
	return s.update(username, func(a *account) {
		a.roles = slices.DeleteFunc(a.roles, func(r string) bool { return r == role })
	})
}

func (s *Store) GrantPermission(_ context.Context, username, perm string) error {
	return s.update(username, func(a *account) {
		if !slices.Contains(a.perms, perm) {
			a.perms = append(a.perms, perm)
		}
	})
}

func (s *Store) GrantRolePermission(_ context.Context, role, perm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.rolePerms[role], perm) {
		s.rolePerms[role] = append(s.rolePerms[role], perm)
	}
	return nil
}

func (s *Store) Grants(_ context.Context, username string) ([]string, []string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, err := s.lookup(username)
	if err != nil {
		return nil, nil, err
	}
	roles := slices.Clone(a.roles)
	perms := slices.Clone(a.perms)
	for _, r := range a.roles {
		perms = append(perms, s.rolePerms[r]...)
	}
	return roles, perms, nil
}
