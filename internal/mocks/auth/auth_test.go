package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/errors"
)

type recordingInvalidator struct {
	calls []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, realm, principal string) {
	r.calls = append(r.calls, realm+"/"+principal)
}

func TestStubRealm_Defaults(t *testing.T) {
	ctx := context.Background()
	realm := NewStubRealm("stub")
	realm.Grants["alice"] = domainauth.NewAuthorizationInfo([]string{"admin"}, nil)

	tok := domainauth.NewUsernamePasswordToken("alice", []byte("pw"), "")
	assert.True(t, realm.Supports(tok))
	assert.False(t, realm.Supports(domainauth.NewBearerToken("x", "")))

	info, err := realm.Authenticate(ctx, tok)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, info.Principals.FromRealm("stub"))

	_, err = realm.Authenticate(ctx, domainauth.NewUsernamePasswordToken("bob", nil, ""))
	assert.True(t, errors.IsUnknownAccount(err))

	authz, err := realm.AuthorizationInfo(ctx, info.Principals)
	require.NoError(t, err)
	assert.True(t, authz.HasRole("admin"))
	assert.EqualValues(t, 2, realm.AuthenticateCalls.Load())
	assert.EqualValues(t, 1, realm.AuthzCalls.Load())
}

func TestStubRealm_RegrantFiresInvalidator(t *testing.T) {
	realm := NewStubRealm("stub")
	inv := &recordingInvalidator{}

	realm.Regrant(context.Background(), "alice", domainauth.AuthorizationInfo{})
	assert.Empty(t, inv.calls)

	realm.SetInvalidator(inv)
	realm.Regrant(context.Background(), "alice", domainauth.NewAuthorizationInfo([]string{"user"}, nil))
	assert.Equal(t, []string{"stub/alice"}, inv.calls)
	assert.Same(t, inv, realm.Invalidator())
}

func TestMemoryAuthorizationCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAuthorizationCache()

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", domainauth.NewAuthorizationInfo([]string{"r"}, nil)))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.HasRole("r"))
	assert.Equal(t, 1, c.Hits)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.Equal(t, 0, c.Len())
}

func TestStaticRoleMapper(t *testing.T) {
	m := StaticRoleMapper{Mapping: map[string]string{"admins": "admin", "devs": "user"}}
	assert.Equal(t, []string{"admin", "user"}, m.Roles([]string{"admins", "other", "devs"}))
	assert.Empty(t, m.Roles(nil))
	assert.Equal(t, []string{"admin", "ops"}, m.Grants([]string{"admins"}, "ops").Roles)
}
