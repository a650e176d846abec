package auth

// Package auth contains the domain types exchanged between realms, the
// authenticator and the authorizer. It is pure and free of adapter concerns.

import (
	"fmt"
	"slices"
)

// TokenType identifies the kind of credential a Token carries. Realms use it to
// decide whether they support a token.
type TokenType string

const (
	TokenUsernamePassword  TokenType = "username_password"
	TokenBearer            TokenType = "bearer"
	TokenAuthorizationCode TokenType = "authorization_code"
)

// Token is a submitted credential pair. Implementations are immutable values and
// are never persisted.
type Token interface {
	Type() TokenType
	// Principal is the claimed identity, or empty when only the realm can derive it.
	Principal() string
	// Credentials returns a copy of the secret material.
	Credentials() []byte
	// Host is the originating host, used for new sessions. May be empty.
	Host() string
}

// UsernamePasswordToken is a classic username/password submission.
type UsernamePasswordToken struct {
	username string
	password []byte
	host     string
}

// NewUsernamePasswordToken copies password so later mutation by the caller has no effect.
func NewUsernamePasswordToken(username string, password []byte, host string) UsernamePasswordToken {
	return UsernamePasswordToken{username: username, password: slices.Clone(password), host: host}
}

func (t UsernamePasswordToken) Type() TokenType     { return TokenUsernamePassword }
func (t UsernamePasswordToken) Principal() string   { return t.username }
func (t UsernamePasswordToken) Credentials() []byte { return slices.Clone(t.password) }
func (t UsernamePasswordToken) Host() string        { return t.host }

// String never includes the password.
func (t UsernamePasswordToken) String() string {
	return fmt.Sprintf("UsernamePasswordToken{username=%q host=%q}", t.username, t.host)
}

// BearerToken carries a signed token (typically a JWT) issued elsewhere.
type BearerToken struct {
	raw  string
	host string
}

func NewBearerToken(raw, host string) BearerToken {
	return BearerToken{raw: raw, host: host}
}

func (t BearerToken) Type() TokenType     { return TokenBearer }
func (t BearerToken) Principal() string   { return "" }
func (t BearerToken) Credentials() []byte { return []byte(t.raw) }
func (t BearerToken) Host() string        { return t.host }
func (t BearerToken) String() string      { return fmt.Sprintf("BearerToken{host=%q}", t.host) }

// AuthorizationCodeToken carries the result of an OAuth2/OIDC redirect. State
// and Nonce are the values issued when the flow began.
type AuthorizationCodeToken struct {
	code  string
	state string
	nonce string
	host  string
}

func NewAuthorizationCodeToken(code, state, nonce, host string) AuthorizationCodeToken {
	return AuthorizationCodeToken{code: code, state: state, nonce: nonce, host: host}
}

func (t AuthorizationCodeToken) Type() TokenType     { return TokenAuthorizationCode }
func (t AuthorizationCodeToken) Principal() string   { return "" }
func (t AuthorizationCodeToken) Credentials() []byte { return []byte(t.code) }
func (t AuthorizationCodeToken) Host() string        { return t.host }
func (t AuthorizationCodeToken) State() string       { return t.state }
func (t AuthorizationCodeToken) Nonce() string       { return t.nonce }

func (t AuthorizationCodeToken) String() string {
	return fmt.Sprintf("AuthorizationCodeToken{state=%q host=%q}", t.state, t.host)
}
