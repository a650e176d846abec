package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/bootstrap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string
}

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = 2 * time.Minute

	passwordEnv = "GATEKEEPER_PASSWORD"
	tokenEnv    = "GATEKEEPER_TOKEN"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	logger := bootstrap.InitLogger(cfg.Observability.LogLevel)
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	if len(os.Args) < 2 {
		if usageErr := printUsage(os.Stdout); usageErr != nil {
			logger.Error("print usage failed", "error", usageErr)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if writeErr := writef(os.Stderr, "unknown command %q\n\n", cmdName); writeErr != nil {
			logger.Error("print unknown command message failed", "error", writeErr)
		}
		if usageErr := printUsage(os.Stdout); usageErr != nil {
			logger.Error("print usage failed", "error", usageErr)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmdCtx := &commandContext{
		Ctx:    ctx,
		Logger: logger,
		Config: cfg,
		In:     os.Stdin,
		Out:    os.Stdout,
		Err:    os.Stderr,
		Getenv: os.Getenv,
	}
	runErr := cmd.run(cmdCtx, os.Args[2:])
	stop()
	if runErr != nil {
		if errors.Is(runErr, flag.ErrHelp) {
			os.Exit(2) //nolint:forbidigo // -h on a subcommand is not a success
		}
		logger.ErrorContext(ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations for the account tables",
			run:         runMigrations,
		},
		"hash-password": {
			name:        "hash-password",
			description: "Print a bcrypt hash of a password read from $GATEKEEPER_PASSWORD or stdin",
			run:         runHashPassword,
		},
		"implies": {
			name:        "implies",
			description: "Report whether a granted permission implies a requested one",
			run:         runImplies,
		},
		"login": {
			name:        "login",
			description: "Log in against the configured realms and print principals and grants",
			run:         runLogin,
		},
		"oidc-url": {
			name:        "oidc-url",
			description: "Print an OIDC authorization URL with its state and nonce",
			run:         runOIDCURL,
		},
		"create-account": {
			name:        "create-account",
			description: "Create an account in the Postgres account realm",
			run:         runCreateAccount,
		},
		"set-locked": {
			name:        "set-locked",
			description: "Lock or unlock a Postgres realm account",
			run:         runSetLocked,
		},
		"grant-role": {
			name:        "grant-role",
			description: "Grant a role to a Postgres realm account",
			run:         runGrantRole,
		},
		"revoke-role": {
			name:        "revoke-role",
			description: "Revoke a role from a Postgres realm account",
			run:         runRevokeRole,
		},
		"grant-permission": {
			name:        "grant-permission",
			description: "Grant a permission directly to a Postgres realm account",
			run:         runGrantPermission,
		},
		"grant-role-permission": {
			name:        "grant-role-permission",
			description: "Attach a permission to a role in the Postgres realm",
			run:         runGrantRolePermission,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: gatekeeper-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-24s %s\n", name, cmds[name].description); err != nil {
			return err
		}
	}
	return nil
}

type migrateOptions struct {
	Timeout time.Duration
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	applied, err := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) == 0 {
		return writeln(cmdCtx.Out, "schema is up to date")
	}
	for _, v := range applied {
		if writeErr := writef(cmdCtx.Out, "applied %s\n", v); writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func parseMigrateFlags(args []string, out io.Writer) (migrateOptions, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)

	opts := migrateOptions{Timeout: defaultMigrationTimeout}
	fs.DurationVar(
		&opts.Timeout,
		"timeout",
		defaultMigrationTimeout,
		"Maximum duration to wait for migrations to complete",
	)

	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if opts.Timeout <= 0 {
		return migrateOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}

// readSecret returns the value of envKey, or the first line of in when unset.
func readSecret(cmdCtx *commandContext, envKey string) (string, error) {
	if cmdCtx.Getenv != nil {
		if v := cmdCtx.Getenv(envKey); v != "" {
			return v, nil
		}
	}
	if cmdCtx.In == nil {
		return "", fmt.Errorf("no input: set $%s or pipe the value on stdin", envKey)
	}
	sc := bufio.NewScanner(cmdCtx.In)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return "", fmt.Errorf("no input: set $%s or pipe the value on stdin", envKey)
	}
	v := strings.TrimRight(sc.Text(), "\r")
	if v == "" {
		return "", fmt.Errorf("empty input for $%s", envKey)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
