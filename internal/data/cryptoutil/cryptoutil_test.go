package cryptoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/target/gatekeeper/config"
)

func TestPlainMatcher(t *testing.T) {
	m := PlainMatcher{}
	assert.True(t, m.Matches([]byte("secret"), []byte("secret")))
	assert.False(t, m.Matches([]byte("secret"), []byte("Secret")))
	assert.False(t, m.Matches([]byte("secre"), []byte("secret")))
	assert.False(t, m.Matches(nil, nil), "an empty stored credential never matches")
}

func TestBcryptMatcher(t *testing.T) {
	hash, err := HashPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	m := BcryptMatcher{}
	assert.True(t, m.Matches([]byte("correct horse"), hash))
	assert.False(t, m.Matches([]byte("battery staple"), hash))
	assert.False(t, m.Matches([]byte("correct horse"), []byte("correct horse")), "plaintext is not a hash")
	assert.False(t, m.Matches([]byte("x"), nil))
}

func TestHashPassword(t *testing.T) {
	t.Run("rejects empty password", func(t *testing.T) {
		_, err := HashPassword(nil, 0)
		assert.ErrorIs(t, err, ErrEmptyPassword)
	})

	t.Run("salts each hash", func(t *testing.T) {
		a, err := HashPassword([]byte("pw"), bcrypt.MinCost)
		require.NoError(t, err)
		b, err := HashPassword([]byte("pw"), bcrypt.MinCost)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("default cost", func(t *testing.T) {
		h, err := HashPassword([]byte("pw"), 0)
		require.NoError(t, err)
		cost, err := bcrypt.Cost(h)
		require.NoError(t, err)
		assert.Equal(t, bcrypt.DefaultCost, cost)
	})
}

func TestMatcherFor(t *testing.T) {
	m, err := MatcherFor(config.MatcherPlain)
	require.NoError(t, err)
	assert.IsType(t, PlainMatcher{}, m)

	m, err = MatcherFor(config.MatcherBcrypt)
	require.NoError(t, err)
	assert.IsType(t, BcryptMatcher{}, m)

	_, err = MatcherFor("argon2")
	assert.Error(t, err)
}
