package memrealm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/clock"
	"github.com/target/gatekeeper/internal/domain/model"
	apperrors "github.com/target/gatekeeper/internal/errors"
)

func TestStore_AccountLifecycle(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFixed(t0)
	s := NewStore(clk)

	_, err := s.GetAccount(ctx, "alice")
	assert.True(t, apperrors.IsUnknownAccount(err))

	created, err := s.CreateAccount(ctx, model.CreateAccountRequest{Username: "alice", Credentials: []byte("pw")})
	require.NoError(t, err)
	assert.Equal(t, t0, created.CreatedAt)

	_, err = s.CreateAccount(ctx, model.CreateAccountRequest{Username: "alice", Credentials: []byte("pw")})
	assert.True(t, apperrors.IsConflict(err))

	_, err = s.CreateAccount(ctx, model.CreateAccountRequest{Username: "bad name", Credentials: []byte("pw")})
	assert.True(t, apperrors.IsValidation(err))

	clk.Add(time.Minute)
	n, err := s.RecordFailedAttempt(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.RecordFailedAttempt(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.SetLocked(ctx, "alice", true))
	got, err := s.GetAccount(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.Locked)
	assert.Equal(t, 2, got.FailedAttempts)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)

	require.NoError(t, s.ResetFailedAttempts(ctx, "alice"))
	got, _ = s.GetAccount(ctx, "alice")
	assert.Zero(t, got.FailedAttempts)

	got.Credentials[0] = 'X'
	again, _ := s.GetAccount(ctx, "alice")
	assert.Equal(t, []byte("pw"), again.Credentials, "callers receive copies")

	_, err = s.RecordFailedAttempt(ctx, "nobody")
	assert.True(t, apperrors.IsUnknownAccount(err))
}

func TestStore_Grants(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	_, err := s.CreateAccount(ctx, model.CreateAccountRequest{Username: "bob", Credentials: []byte("pw")})
	require.NoError(t, err)

	require.NoError(t, s.GrantRole(ctx, "bob", "user"))
	require.NoError(t, s.GrantRole(ctx, "bob", "user"))
	require.NoError(t, s.GrantRole(ctx, "bob", "auditor"))
	require.NoError(t, s.GrantPermission(ctx, "bob", "reports:export"))
	require.NoError(t, s.GrantRolePermission(ctx, "user", "docs:read"))
	require.NoError(t, s.GrantRolePermission(ctx, "admin", "*"))

	roles, perms, err := s.Grants(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "auditor"}, roles)
	assert.ElementsMatch(t, []string{"reports:export", "docs:read"}, perms)

	require.NoError(t, s.RevokeRole(ctx, "bob", "user"))
	roles, perms, err = s.Grants(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"auditor"}, roles)
	assert.Equal(t, []string{"reports:export"}, perms)

	_, _, err = s.Grants(ctx, "nobody")
	assert.True(t, apperrors.IsUnknownAccount(err))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds account and role permissions", func(t *testing.T) {
		s := NewStore(nil)
		err := Seed(ctx, s, SeedOptions{
			Account: config.StaticRealmConfig{
				Name:        "static",
				Username:    "admin",
				Password:    "$2a$10$hash",
				Matcher:     config.MatcherBcrypt,
				Roles:       []string{"admin"},
				Permissions: []string{"audit:read"},
			},
			RolePermissions: map[string][]string{"admin": {"*"}},
		})
		require.NoError(t, err)

		roles, perms, err := s.Grants(ctx, "admin")
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, roles)
		assert.ElementsMatch(t, []string{"audit:read", "*"}, perms)
	})

	t.Run("empty password skips the account", func(t *testing.T) {
		s := NewStore(nil)
		require.NoError(t, Seed(ctx, s, SeedOptions{Account: config.StaticRealmConfig{Username: "admin"}}))
		_, err := s.GetAccount(ctx, "admin")
		assert.True(t, apperrors.IsUnknownAccount(err))
	})

	t.Run("plain matcher requires development mode", func(t *testing.T) {
		cfg := config.StaticRealmConfig{Username: "admin", Password: "pw", Matcher: config.MatcherPlain}
		require.Error(t, Seed(ctx, NewStore(nil), SeedOptions{Account: cfg}))
		require.NoError(t, Seed(ctx, NewStore(nil), SeedOptions{Account: cfg, AllowPlaintext: true}))
	})

	t.Run("invalid permissions fail", func(t *testing.T) {
		cfg := config.StaticRealmConfig{Username: "admin", Password: "pw", Permissions: []string{"a::b"}}
		assert.Error(t, Seed(ctx, NewStore(nil), SeedOptions{Account: cfg}))
		assert.Error(t, Seed(ctx, NewStore(nil), SeedOptions{RolePermissions: map[string][]string{"r": {""}}}))
	})
}
