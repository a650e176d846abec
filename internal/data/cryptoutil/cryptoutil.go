// Package cryptoutil holds the credential matchers account realms use to
// compare submitted passwords with stored credentials.
package cryptoutil

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/ports"
)

var (
	_ ports.CredentialsMatcher = PlainMatcher{}
	_ ports.CredentialsMatcher = BcryptMatcher{}
)

// ErrEmptyPassword is returned by HashPassword for an empty input.
var ErrEmptyPassword = errors.New("password must not be empty")

// PlainMatcher compares stored plaintext credentials in constant time.
// Only suitable for development seeds.
type PlainMatcher struct{}

func (PlainMatcher) Matches(submitted, stored []byte) bool {
	if len(stored) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(submitted, stored) == 1
}

// BcryptMatcher compares a submitted password with a stored bcrypt hash.
type BcryptMatcher struct{}

func (BcryptMatcher) Matches(submitted, stored []byte) bool {
	if len(stored) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(stored, submitted) == nil
}

// HashPassword returns a bcrypt hash of password. cost <= 0 uses bcrypt.DefaultCost.
func HashPassword(password []byte, cost int) ([]byte, error) {
	if len(password) == 0 {
		return nil, ErrEmptyPassword
	}
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// MatcherFor returns the matcher configured by kind.
func MatcherFor(kind config.MatcherKind) (ports.CredentialsMatcher, error) {
	switch kind {
	case config.MatcherPlain:
		return PlainMatcher{}, nil
	case config.MatcherBcrypt, "":
		return BcryptMatcher{}, nil
	default:
		return nil, fmt.Errorf("unknown credentials matcher %q", kind)
	}
}
