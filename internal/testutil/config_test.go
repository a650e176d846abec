package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME"} {
			t.Setenv(k, "")
		}
		cfg := DefaultTestDBConfig()
		assert.Equal(t, TestDBConfig{
			Host:     "localhost",
			Port:     "55432",
			User:     "gatekeeper",
			Password: "gatekeeper",
			DBName:   "gatekeeper",
		}, cfg)
	})

	t.Run("respects TEST_DB_* environment variables", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("TEST_DB_USER", "ci")
		t.Setenv("TEST_DB_PASSWORD", "ci-pass")
		t.Setenv("TEST_DB_NAME", "ci_db")
		cfg := DefaultTestDBConfig()
		assert.Equal(t, "postgres", cfg.Host)
		assert.Equal(t, "5432", cfg.Port)
		assert.Equal(t, "ci", cfg.User)
		assert.Equal(t, "ci-pass", cfg.Password)
		assert.Equal(t, "ci_db", cfg.DBName)
	})
}

func TestRequireInfraFlags(t *testing.T) {
	tests := []struct {
		env       map[string]string
		wantDB    bool
		wantRedis bool
	}{
		{env: map[string]string{}, wantDB: false, wantRedis: false},
		{env: map[string]string{"TEST_REQUIRE_DB": "true"}, wantDB: true, wantRedis: false},
		{env: map[string]string{"TEST_REQUIRE_REDIS": "1"}, wantDB: false, wantRedis: true},
		{env: map[string]string{"TEST_REQUIRE_INFRA": "yes"}, wantDB: true, wantRedis: true},
		{env: map[string]string{"TEST_REQUIRE_INFRA": "nope"}, wantDB: false, wantRedis: false},
	}
	for _, tt := range tests {
		for _, k := range []string{"TEST_REQUIRE_DB", "TEST_REQUIRE_REDIS", "TEST_REQUIRE_INFRA"} {
			t.Setenv(k, tt.env[k])
		}
		assert.Equal(t, tt.wantDB, requireDB(), tt.env)
		assert.Equal(t, tt.wantRedis, requireRedis(), tt.env)
	}
}

func TestGenerateSchemaName(t *testing.T) {
	a, b := generateSchemaName(), generateSchemaName()
	assert.Regexp(t, `^t_[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}
