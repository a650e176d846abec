package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeUnknownSession, Message: "unknown session"},
			want: "unknown session",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "realm fault",
				Cause:   errors.New("underlying error"),
			},
			want: "realm fault: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(cause, ErrCodeInternal, "wrapped error")

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "nothing"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"NotFound", NotFound("x"), ErrCodeNotFound},
		{"Conflict", Conflict("x"), ErrCodeConflict},
		{"Validation", Validation("x"), ErrCodeValidation},
		{"Internal", Internalf("x %d", 1), ErrCodeInternal},
		{"UnsupportedToken", UnsupportedToken("bearer"), ErrCodeUnsupportedToken},
		{"IncorrectCredentials", IncorrectCredentials("alice"), ErrCodeIncorrectCredentials},
		{"UnknownAccount", UnknownAccount("alice"), ErrCodeUnknownAccount},
		{"LockedAccount", LockedAccount("alice"), ErrCodeLockedAccount},
		{"ExcessiveAttempts", ExcessiveAttempts("alice"), ErrCodeExcessiveAttempts},
		{"ExpiredCredentials", ExpiredCredentials("alice"), ErrCodeExpiredCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("%s().Code = %v, want %v", tt.name, tt.err.Code, tt.code)
			}
			if tt.err.Message == "" {
				t.Errorf("%s().Message should not be empty", tt.name)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("key", "attribute key must not be empty")
	if !IsValidation(err) {
		t.Errorf("ValidationField() should be a validation error")
	}
	if GetField(err) != "key" {
		t.Errorf("GetField() = %q, want %q", GetField(err), "key")
	}
}

func TestIsHelpers_WrappedChain(t *testing.T) {
	base := New(ErrCodeExpiredSession, "session expired")
	wrapped := fmt.Errorf("touch: %w", base)

	if !IsExpiredSession(wrapped) {
		t.Errorf("IsExpiredSession() should see through fmt wrapping")
	}
	if IsStoppedSession(wrapped) {
		t.Errorf("IsStoppedSession() should be false for expired sessions")
	}
	if GetCode(wrapped) != ErrCodeExpiredSession {
		t.Errorf("GetCode() = %v, want %v", GetCode(wrapped), ErrCodeExpiredSession)
	}
	if GetCode(errors.New("plain")) != "" {
		t.Errorf("GetCode() of plain error should be empty")
	}
}

func TestAuthenticationFailed_Aggregate(t *testing.T) {
	incorrect := IncorrectCredentials("alice")
	unknown := UnknownAccount("alice")
	err := AuthenticationFailed([]RealmFailure{
		{Realm: "ldap", Err: incorrect},
		{Realm: "db", Err: unknown},
	})

	if !IsAuthenticationFailed(err) {
		t.Fatalf("expected authentication_failed, got %v", GetCode(err))
	}
	failures := Failures(err)
	if len(failures) != 2 {
		t.Fatalf("Failures() len = %d, want 2", len(failures))
	}
	if failures[0].Realm != "ldap" || failures[1].Realm != "db" {
		t.Errorf("Failures() realm order = %v", failures)
	}
	if !errors.Is(err, incorrect) || !errors.Is(err, unknown) {
		t.Errorf("aggregate should unwrap to every realm error")
	}

	var agg *AggregateError
	if !errors.As(err, &agg) {
		t.Fatalf("errors.As(*AggregateError) failed")
	}
	if f, ok := agg.Failure("db"); !ok || !IsUnknownAccount(f.Err) {
		t.Errorf("Failure(db) = %v, %v", f, ok)
	}
	if _, ok := agg.Failure("missing"); ok {
		t.Errorf("Failure(missing) should report false")
	}
	want := `ldap: incorrect credentials for "alice"; db: unknown account "alice"`
	if agg.Error() != want {
		t.Errorf("AggregateError.Error() = %q, want %q", agg.Error(), want)
	}
}

func TestIsAuthenticationError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{IncorrectCredentials("a"), true},
		{LockedAccount("a"), true},
		{New(ErrCodeConcurrentAccess, "busy"), true},
		{Internal("boom"), false},
		{errors.New("plain"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsAuthenticationError(tt.err); got != tt.want {
			t.Errorf("IsAuthenticationError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
