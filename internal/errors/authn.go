package errors

import (
	"errors"
	"strings"
)

// RealmFailure records why a single realm did not authenticate a token.
type RealmFailure struct {
	Realm string
	Err   error
}

func (f RealmFailure) Error() string {
	return f.Realm + ": " + f.Err.Error()
}

func (f RealmFailure) Unwrap() error { return f.Err }

// AggregateError carries one RealmFailure per consulted realm, in realm order.
type AggregateError struct {
	Failures []RealmFailure
}

func (e *AggregateError) Error() string {
	if len(e.Failures) == 0 {
		return "no realm failures recorded"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return strings.Join(parts, "; ")
}

// Unwrap exposes each realm's error to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	return errs
}

// Failure returns the failure recorded for realm, if any.
func (e *AggregateError) Failure(realm string) (RealmFailure, bool) {
	for _, f := range e.Failures {
		if f.Realm == realm {
			return f, true
		}
	}
	return RealmFailure{}, false
}

// AuthenticationFailed wraps the per-realm failures of an unsuccessful attempt.
func AuthenticationFailed(failures []RealmFailure) *AppError {
	return &AppError{
		Code:    ErrCodeAuthenticationFailed,
		Message: "authentication failed",
		Cause:   &AggregateError{Failures: failures},
	}
}

// Failures returns the per-realm failures carried by err, if any.
func Failures(err error) []RealmFailure {
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Failures
	}
	return nil
}

// UnsupportedToken reports that no configured realm accepts the token type.
func UnsupportedToken(tokenType string) *AppError {
	return Newf(ErrCodeUnsupportedToken, "no realm supports %s tokens", tokenType)
}

// IncorrectCredentials reports a credential mismatch.
func IncorrectCredentials(principal string) *AppError {
	return Newf(ErrCodeIncorrectCredentials, "incorrect credentials for %q", principal)
}

// UnknownAccount reports a principal the realm has no record of.
func UnknownAccount(principal string) *AppError {
	return Newf(ErrCodeUnknownAccount, "unknown account %q", principal)
}

// LockedAccount reports an administratively locked account.
func LockedAccount(principal string) *AppError {
	return Newf(ErrCodeLockedAccount, "account %q is locked", principal)
}

// ExcessiveAttempts reports an account that exceeded its failed-attempt allowance.
func ExcessiveAttempts(principal string) *AppError {
	return Newf(ErrCodeExcessiveAttempts, "too many failed attempts for %q", principal)
}

// ExpiredCredentials reports credentials past their validity.
func ExpiredCredentials(principal string) *AppError {
	return Newf(ErrCodeExpiredCredentials, "credentials for %q have expired", principal)
}

// IsAuthenticationFailed checks if an error is an aggregate authentication failure.
func IsAuthenticationFailed(err error) bool {
	return isCode(err, ErrCodeAuthenticationFailed)
}

// IsUnsupportedToken checks if no realm supported the submitted token.
func IsUnsupportedToken(err error) bool {
	return isCode(err, ErrCodeUnsupportedToken)
}

// IsUnknownAccount checks if a realm did not recognize the principal.
func IsUnknownAccount(err error) bool {
	return isCode(err, ErrCodeUnknownAccount)
}

// IsAuthenticationError reports whether err carries one of the codes a realm
// legitimately returns for a rejected token. Anything else is an unexpected fault.
func IsAuthenticationError(err error) bool {
	switch GetCode(err) {
	case ErrCodeUnsupportedToken, ErrCodeIncorrectCredentials, ErrCodeUnknownAccount,
		ErrCodeLockedAccount, ErrCodeExcessiveAttempts, ErrCodeExpiredCredentials,
		ErrCodeConcurrentAccess, ErrCodeAuthenticationFailed:
		return true
	default:
		return false
	}
}
