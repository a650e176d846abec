package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/gatekeeper/internal/domain/permission"
)

func TestUsernamePasswordToken_CopiesCredentials(t *testing.T) {
	pw := []byte("secret")
	tok := NewUsernamePasswordToken("alice", pw, "10.0.0.1")
	pw[0] = 'X'

	assert.Equal(t, []byte("secret"), tok.Credentials())
	got := tok.Credentials()
	got[0] = 'Y'
	assert.Equal(t, []byte("secret"), tok.Credentials())

	assert.Equal(t, TokenUsernamePassword, tok.Type())
	assert.Equal(t, "alice", tok.Principal())
	assert.Equal(t, "10.0.0.1", tok.Host())
	assert.NotContains(t, tok.String(), "secret")
}

func TestBearerAndCodeTokens(t *testing.T) {
	b := NewBearerToken("eyJ.abc.def", "h")
	assert.Equal(t, TokenBearer, b.Type())
	assert.Empty(t, b.Principal())
	assert.Equal(t, []byte("eyJ.abc.def"), b.Credentials())
	assert.NotContains(t, b.String(), "eyJ")

	c := NewAuthorizationCodeToken("code-1", "state-1", "nonce-1", "h")
	assert.Equal(t, TokenAuthorizationCode, c.Type())
	assert.Equal(t, "state-1", c.State())
	assert.Equal(t, "nonce-1", c.Nonce())
	assert.Equal(t, []byte("code-1"), c.Credentials())
}

func TestPrincipalCollection(t *testing.T) {
	var empty PrincipalCollection
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, empty.Primary())
	assert.Empty(t, empty.All())

	c := NewPrincipalCollection("ldap", "alice", "alice", "")
	c2 := c.With("db", "alice@example.com").With("ldap", "uid=7")

	assert.Equal(t, []string{"alice"}, c.FromRealm("ldap"), "With must not mutate the receiver")
	assert.Equal(t, []string{"ldap", "db"}, c2.RealmNames())
	assert.Equal(t, []string{"alice", "uid=7"}, c2.FromRealm("ldap"))
	assert.Equal(t, "alice", c2.Primary())
	assert.Equal(t, "alice@example.com", c2.AvailablePrincipal("db"))
	assert.Equal(t, "alice", c2.AvailablePrincipal("jwt"))
	assert.Equal(t, []string{"alice", "uid=7", "alice@example.com"}, c2.All())
	assert.True(t, c2.Contains("uid=7"))
	assert.False(t, c2.Contains("bob"))

	assert.True(t, NewPrincipalCollection("x").IsEmpty())
}

func TestPrincipalCollection_Merge(t *testing.T) {
	a := NewPrincipalCollection("ldap", "alice")
	b := NewPrincipalCollection("db", "alice").With("ldap", "alice2")

	m := a.Merge(b)
	assert.Equal(t, []string{"ldap", "db"}, m.RealmNames())
	assert.Equal(t, []string{"alice", "alice2"}, m.FromRealm("ldap"))
	assert.Equal(t, []string{"alice"}, m.FromRealm("db"))
	assert.Equal(t, []string{"alice"}, a.FromRealm("ldap"))
}

func TestAuthenticationInfo_Merge(t *testing.T) {
	first := AuthenticationInfo{Principals: NewPrincipalCollection("a", "alice")}
	second := AuthenticationInfo{Principals: NewPrincipalCollection("b", "alice"), Credentials: []byte("hash-b")}
	third := AuthenticationInfo{Principals: NewPrincipalCollection("c", "al"), Credentials: []byte("hash-c")}

	merged := first.Merge(second, nil).Merge(third, nil)
	assert.Equal(t, []string{"a", "b", "c"}, merged.Principals.RealmNames())
	assert.Equal(t, []byte("hash-b"), merged.Credentials)

	lastWins := func(current, next []byte) []byte {
		if len(next) > 0 {
			return next
		}
		return current
	}
	merged = first.Merge(second, lastWins).Merge(third, lastWins)
	assert.Equal(t, []byte("hash-c"), merged.Credentials)
}

func TestAuthorizationInfo(t *testing.T) {
	perms, err := permission.ParseAll([]string{"docs:read", "docs:read", "printer:*"})
	require.NoError(t, err)

	info := NewAuthorizationInfo([]string{"user", "admin", "user", ""}, perms)
	assert.Equal(t, []string{"admin", "user"}, info.Roles)
	assert.Len(t, info.Permissions, 2)
	assert.True(t, info.HasRole("admin"))
	assert.False(t, info.HasRole("Admin"))
	assert.True(t, info.IsPermitted(permission.MustParse("printer:print:lp1")))
	assert.False(t, info.IsPermitted(permission.MustParse("docs:write")))

	other := NewAuthorizationInfo([]string{"auditor"}, []permission.Permission{permission.MustParse("docs:write")})
	u := info.Union(other)
	assert.Equal(t, []string{"admin", "auditor", "user"}, u.Roles)
	assert.True(t, u.IsPermitted(permission.MustParse("docs:write")))

	assert.True(t, AuthorizationInfo{}.IsEmpty())
	assert.False(t, u.IsEmpty())
}

func TestIdentity_Expired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, Identity{}.Expired(now))
	assert.True(t, Identity{ExpiresAt: now}.Expired(now))
	assert.False(t, Identity{ExpiresAt: now.Add(time.Second)}.Expired(now))
}
