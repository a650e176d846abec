//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     CreateAccountRequest
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid request",
			req:  CreateAccountRequest{Username: "alice@example.com", Credentials: []byte("$2a$10$hash")},
		},
		{
			name:    "empty username",
			req:     CreateAccountRequest{Username: "  ", Credentials: []byte("x")},
			wantErr: true,
			errMsg:  "username is required and cannot be empty",
		},
		{
			name:    "username too long",
			req:     CreateAccountRequest{Username: strings.Repeat("a", 256), Credentials: []byte("x")},
			wantErr: true,
			errMsg:  "username cannot exceed 255 characters",
		},
		{
			name:    "invalid characters",
			req:     CreateAccountRequest{Username: "al ice", Credentials: []byte("x")},
			wantErr: true,
			errMsg:  "username must start with",
		},
		{
			name:    "missing credentials",
			req:     CreateAccountRequest{Username: "alice"},
			wantErr: true,
			errMsg:  "credentials are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.req.Validate()
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestAccount_CredentialsExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, Account{}.CredentialsExpired(now))
	assert.True(t, Account{CredentialsExpireAt: &past}.CredentialsExpired(now))
	assert.True(t, Account{CredentialsExpireAt: &now}.CredentialsExpired(now))
	assert.False(t, Account{CredentialsExpireAt: &future}.CredentialsExpired(now))
}
