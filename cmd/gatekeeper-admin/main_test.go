package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/bootstrap"
	"github.com/target/gatekeeper/internal/data/cryptoutil"
)

type testIO struct {
	out *bytes.Buffer
	err *bytes.Buffer
}

func newTestContext(t *testing.T, cfg config.AppConfig, stdin string, env map[string]string) (*commandContext, testIO) {
	t.Helper()
	tio := testIO{out: &bytes.Buffer{}, err: &bytes.Buffer{}}
	return &commandContext{
		Ctx:    context.Background(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: cfg,
		In:     strings.NewReader(stdin),
		Out:    tio.out,
		Err:    tio.err,
		Getenv: func(k string) string { return env[k] },
	}, tio
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printUsage(&buf))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Usage: gatekeeper-admin <command> [flags]"))
	for name := range commands() {
		assert.Contains(t, out, "  "+name)
	}
	assert.Less(t, strings.Index(out, "create-account"), strings.Index(out, "migrate"), "commands are listed in order")
}

func TestCommandsTableNamesMatchKeys(t *testing.T) {
	for key, cmd := range commands() {
		assert.Equal(t, key, cmd.name)
		assert.NotEmpty(t, cmd.description)
		assert.NotNil(t, cmd.run)
	}
}

func TestParseMigrateFlags(t *testing.T) {
	opts, err := parseMigrateFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, defaultMigrationTimeout, opts.Timeout)

	opts, err = parseMigrateFlags([]string{"--timeout", "30s"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, opts.Timeout)

	_, err = parseMigrateFlags([]string{"--timeout", "0s"}, io.Discard)
	assert.ErrorContains(t, err, "greater than zero")

	_, err = parseMigrateFlags([]string{"--bogus"}, io.Discard)
	assert.Error(t, err)
}

func TestReadSecret(t *testing.T) {
	t.Run("environment wins", func(t *testing.T) {
		cmdCtx, _ := newTestContext(t, config.AppConfig{}, "from-stdin\n", map[string]string{passwordEnv: "from-env"})
		v, err := readSecret(cmdCtx, passwordEnv)
		require.NoError(t, err)
		assert.Equal(t, "from-env", v)
	})

	t.Run("first stdin line", func(t *testing.T) {
		cmdCtx, _ := newTestContext(t, config.AppConfig{}, "line one\r\nline two\n", nil)
		v, err := readSecret(cmdCtx, passwordEnv)
		require.NoError(t, err)
		assert.Equal(t, "line one", v)
	})

	t.Run("empty input", func(t *testing.T) {
		cmdCtx, _ := newTestContext(t, config.AppConfig{}, "", nil)
		_, err := readSecret(cmdCtx, passwordEnv)
		assert.ErrorContains(t, err, passwordEnv)

		cmdCtx, _ = newTestContext(t, config.AppConfig{}, "\n", nil)
		_, err = readSecret(cmdCtx, passwordEnv)
		assert.ErrorContains(t, err, "empty input")
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}

func TestRunHashPassword(t *testing.T) {
	cmdCtx, tio := newTestContext(t, config.AppConfig{}, "s3cret\n", nil)
	require.NoError(t, runHashPassword(cmdCtx, []string{"--cost", "4"}))

	hash := strings.TrimSpace(tio.out.String())
	assert.True(t, cryptoutil.BcryptMatcher{}.Matches([]byte("s3cret"), []byte(hash)))
	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, 4, cost)

	cmdCtx, _ = newTestContext(t, config.AppConfig{}, "", nil)
	assert.Error(t, runHashPassword(cmdCtx, nil))
}

func TestRunImplies(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{name: "wildcard action", args: []string{"docs:*", "docs:read"}, want: "docs:* implies docs:read: true"},
		{name: "narrower grant", args: []string{"docs:read", "docs:*"}, want: "docs:read implies docs:*: false"},
		{name: "instance level", args: []string{"printer:print:lp7", "printer:print:lp7"}, want: ": true"},
		{name: "missing argument", args: []string{"docs:*"}, wantErr: true},
		{name: "malformed permission", args: []string{"docs::read", "docs:read"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmdCtx, tio := newTestContext(t, config.AppConfig{}, "", nil)
			err := runImplies(cmdCtx, tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, tio.out.String(), tt.want)
		})
	}
}

func TestParseLoginFlags(t *testing.T) {
	opts, err := parseLoginFlags([]string{"--check", "docs:read, reports:read", "alice"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "alice", opts.Username)
	assert.Equal(t, []string{"docs:read", "reports:read"}, opts.Check)

	opts, err = parseLoginFlags([]string{"--bearer"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.Bearer)

	_, err = parseLoginFlags([]string{"--bearer", "alice"}, io.Discard)
	assert.Error(t, err)
	_, err = parseLoginFlags(nil, io.Discard)
	assert.Error(t, err)
}

func staticConfig(t *testing.T) config.AppConfig {
	t.Helper()
	t.Setenv("DEV", "true")
	t.Setenv("AUTHC_REALMS", "static")
	t.Setenv("STATIC_REALM_USERNAME", "admin")
	t.Setenv("STATIC_REALM_PASSWORD", "pw")
	t.Setenv("STATIC_REALM_MATCHER", "plain")
	t.Setenv("STATIC_REALM_ROLES", "admin")
	t.Setenv("AUTHC_ROLE_PERMISSIONS", "admin=docs:*")
	t.Setenv("AUTHZ_CACHE_MODE", "local")
	t.Setenv("SESSION_SWEEP_ENABLED", "false")
	t.Setenv("OBSERVABILITY_METRICS_ENABLED", "false")
	cfg, err := bootstrap.LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestRunLogin_StaticRealm(t *testing.T) {
	cfg := staticConfig(t)

	cmdCtx, tio := newTestContext(t, cfg, "", map[string]string{passwordEnv: "pw"})
	require.NoError(t, runLogin(cmdCtx, []string{"--check", "docs:write,reports:read", "admin"}))

	out := tio.out.String()
	assert.Contains(t, out, "session: ")
	assert.Contains(t, out, "primary: admin")
	assert.Contains(t, out, "principals[static]: admin")
	assert.Contains(t, out, "roles: admin")
	assert.Contains(t, out, "permissions: docs:*")
	assert.Contains(t, out, "permitted docs:write: true")
	assert.Contains(t, out, "permitted reports:read: false")
}

func TestRunLogin_WrongPassword(t *testing.T) {
	cfg := staticConfig(t)

	cmdCtx, tio := newTestContext(t, cfg, "nope\n", nil)
	err := runLogin(cmdCtx, []string{"admin"})
	require.Error(t, err)
	assert.Empty(t, tio.out.String())
}

func TestParseCreateAccountFlags(t *testing.T) {
	cmdCtx, _ := newTestContext(t, config.AppConfig{}, "", nil)
	opts, err := parseCreateAccountFlags(cmdCtx, []string{
		"--locked", "--expires-in", "24h", "--roles", "user,auditor", "--permissions", "docs:read", "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, "bob", opts.Username)
	assert.True(t, opts.Locked)
	assert.Equal(t, 24*time.Hour, opts.ExpiresIn)
	assert.Equal(t, []string{"user", "auditor"}, opts.Roles)
	assert.Equal(t, []string{"docs:read"}, opts.Permissions)

	_, err = parseCreateAccountFlags(cmdCtx, []string{"--permissions", "docs::read", "bob"})
	assert.Error(t, err)
	_, err = parseCreateAccountFlags(cmdCtx, []string{"--expires-in", "-1h", "bob"})
	assert.Error(t, err)
	_, err = parseCreateAccountFlags(cmdCtx, nil)
	assert.Error(t, err)
}

func TestStoredCredentials(t *testing.T) {
	plain, err := storedCredentials(config.MatcherPlain, "pw", 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("pw"), plain)

	hashed, err := storedCredentials(config.MatcherBcrypt, "pw", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, cryptoutil.BcryptMatcher{}.Matches([]byte("pw"), hashed))
}

func TestAccountCommands_Usage(t *testing.T) {
	for _, fn := range []commandFn{runGrantRole, runRevokeRole, runGrantPermission, runGrantRolePermission} {
		cmdCtx, _ := newTestContext(t, config.AppConfig{}, "", nil)
		assert.ErrorContains(t, fn(cmdCtx, []string{"only-one"}), "usage:")
	}

	cmdCtx, _ := newTestContext(t, config.AppConfig{}, "", nil)
	assert.ErrorContains(t, runSetLocked(cmdCtx, []string{"bob", "maybe"}), "parse locked flag")
}
