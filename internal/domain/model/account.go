//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxUsernameLen = 255
)

var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.@-]*$`)

func validateUsername(name string) error {
	n := strings.TrimSpace(name)
	if n == "" {
		return errors.New("username is required and cannot be empty")
	}
	if utf8.RuneCountInString(n) > maxUsernameLen {
		return errors.New("username cannot exceed 255 characters")
	}
	if !usernameRe.MatchString(n) {
		return errors.New(
			"username must start with a letter, digit, or underscore and contain only letters, digits, '.', '@', '_' or '-'",
		)
	}
	return nil
}

// Account is a stored identity for account-backed realms. Credentials holds the
// stored (usually hashed) secret and is never serialized.
type Account struct {
	Username            string     `json:"username"                         db:"username"`
	Credentials         []byte     `json:"-"                                db:"credentials"`
	Locked              bool       `json:"locked"                           db:"locked"`
	CredentialsExpireAt *time.Time `json:"credentials_expire_at,omitempty"  db:"credentials_expire_at"`
	FailedAttempts      int        `json:"failed_attempts"                  db:"failed_attempts"`
	CreatedAt           time.Time  `json:"created_at"                       db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"                       db:"updated_at"`
}

// CredentialsExpired reports whether the stored credentials are past their validity at now.
func (a Account) CredentialsExpired(now time.Time) bool {
	return a.CredentialsExpireAt != nil && !now.Before(*a.CredentialsExpireAt)
}

// CreateAccountRequest contains fields to create a new account.
// Credentials must already be in the form the realm's matcher expects (e.g. a bcrypt hash).
type CreateAccountRequest struct {
	Username            string     `json:"username"`
	Credentials         []byte     `json:"-"`
	Locked              bool       `json:"locked"`
	CredentialsExpireAt *time.Time `json:"credentials_expire_at,omitempty"`
}

func (r *CreateAccountRequest) Validate() error {
	if err := validateUsername(r.Username); err != nil {
		return err
	}
	if len(r.Credentials) == 0 {
		return errors.New("credentials are required")
	}
	return nil
}
