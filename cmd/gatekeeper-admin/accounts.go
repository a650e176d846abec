package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/adapters/accountrealm"
	"github.com/target/gatekeeper/internal/bootstrap"
	"github.com/target/gatekeeper/internal/data/cryptoutil"
	"github.com/target/gatekeeper/internal/domain/model"
	"github.com/target/gatekeeper/internal/domain/permission"
)

type accountFn func(ctx context.Context, realm *accountrealm.Realm) error

// withAccountRealm connects to Postgres and runs fn against the account realm
// configured by PG_REALM_*, whether or not it is listed in AUTHC_REALMS.
func withAccountRealm(cmdCtx *commandContext, fn accountFn) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
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

	realm, err := bootstrap.PostgresRealm(bootstrap.RealmDeps{
		Config: cmdCtx.Config,
		DB:     db,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	return fn(ctx, realm)
}

type createAccountOptions struct {
	Username    string
	Locked      bool
	ExpiresIn   time.Duration
	Roles       []string
	Permissions []string
	Cost        int
}

func parseCreateAccountFlags(cmdCtx *commandContext, args []string) (createAccountOptions, error) {
	fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Err)

	var opts createAccountOptions
	var roles, perms string
	fs.BoolVar(&opts.Locked, "locked", false, "Create the account locked")
	fs.DurationVar(&opts.ExpiresIn, "expires-in", 0, "Credential validity from now (0 never expires)")
	fs.StringVar(&roles, "roles", "", "Comma-separated roles to grant")
	fs.StringVar(&perms, "permissions", "", "Comma-separated permissions to grant directly")
	fs.IntVar(&opts.Cost, "cost", 0, "bcrypt cost when the realm uses the bcrypt matcher")
	if err := fs.Parse(args); err != nil {
		return createAccountOptions{}, err
	}
	if fs.NArg() != 1 {
		return createAccountOptions{}, errors.New("usage: create-account [flags] <username>")
	}
	if opts.ExpiresIn < 0 {
		return createAccountOptions{}, errors.New("--expires-in must not be negative")
	}
	opts.Username = fs.Arg(0)
	opts.Roles = splitList(roles)
	opts.Permissions = splitList(perms)
	if _, err := permission.ParseAll(opts.Permissions); err != nil {
		return createAccountOptions{}, err
	}
	return opts, nil
}

// storedCredentials converts a password into what the realm's matcher compares against.
func storedCredentials(kind config.MatcherKind, password string, cost int) ([]byte, error) {
	if kind == config.MatcherPlain {
		return []byte(password), nil
	}
	return cryptoutil.HashPassword([]byte(password), cost)
}

func runCreateAccount(cmdCtx *commandContext, args []string) error {
	opts, err := parseCreateAccountFlags(cmdCtx, args)
	if err != nil {
		return err
	}
	pw, err := readSecret(cmdCtx, passwordEnv)
	if err != nil {
		return err
	}
	creds, err := storedCredentials(cmdCtx.Config.Authc.Postgres.Matcher, pw, opts.Cost)
	if err != nil {
		return err
	}
	req := model.CreateAccountRequest{
		Username:    opts.Username,
		Credentials: creds,
		Locked:      opts.Locked,
	}
	if opts.ExpiresIn > 0 {
		at := time.Now().Add(opts.ExpiresIn).UTC()
		req.CredentialsExpireAt = &at
	}

	return withAccountRealm(cmdCtx, func(ctx context.Context, realm *accountrealm.Realm) error {
		acct, createErr := realm.CreateAccount(ctx, req)
		if createErr != nil {
			return createErr
		}
		for _, role := range opts.Roles {
			if grantErr := realm.GrantRole(ctx, acct.Username, role); grantErr != nil {
				return fmt.Errorf("grant role %q: %w", role, grantErr)
			}
		}
		for _, perm := range opts.Permissions {
			if grantErr := realm.GrantPermission(ctx, acct.Username, perm); grantErr != nil {
				return fmt.Errorf("grant permission %q: %w", perm, grantErr)
			}
		}
		cmdCtx.Logger.InfoContext(ctx, "account created", "realm", realm.Name(), "username", acct.Username)
		return writef(cmdCtx.Out, "created %s in realm %s\n", acct.Username, realm.Name())
	})
}

func runSetLocked(cmdCtx *commandContext, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: set-locked <username> <true|false>")
	}
	locked, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("parse locked flag: %w", err)
	}
	return withAccountRealm(cmdCtx, func(ctx context.Context, realm *accountrealm.Realm) error {
		if setErr := realm.SetLocked(ctx, args[0], locked); setErr != nil {
			return setErr
		}
		return writef(cmdCtx.Out, "%s locked=%t\n", args[0], locked)
	})
}

// pairCommand builds a command taking exactly two positional arguments.
func pairCommand(usage string, fn func(ctx context.Context, realm *accountrealm.Realm, a, b string) error) commandFn {
	return func(cmdCtx *commandContext, args []string) error {
		if len(args) != 2 {
			return errors.New("usage: " + usage)
		}
		return withAccountRealm(cmdCtx, func(ctx context.Context, realm *accountrealm.Realm) error {
			if err := fn(ctx, realm, args[0], args[1]); err != nil {
				return err
			}
			return writeln(cmdCtx.Out, "ok")
		})
	}
}

func runGrantRole(cmdCtx *commandContext, args []string) error {
	return pairCommand("grant-role <username> <role>",
		func(ctx context.Context, r *accountrealm.Realm, user, role string) error {
			return r.GrantRole(ctx, user, role)
		})(cmdCtx, args)
}

func runRevokeRole(cmdCtx *commandContext, args []string) error {
	return pairCommand("revoke-role <username> <role>",
		func(ctx context.Context, r *accountrealm.Realm, user, role string) error {
			return r.RevokeRole(ctx, user, role)
		})(cmdCtx, args)
}

func runGrantPermission(cmdCtx *commandContext, args []string) error {
	return pairCommand("grant-permission <username> <permission>",
		func(ctx context.Context, r *accountrealm.Realm, user, perm string) error {
			return r.GrantPermission(ctx, user, perm)
		})(cmdCtx, args)
}

func runGrantRolePermission(cmdCtx *commandContext, args []string) error {
	return pairCommand("grant-role-permission <role> <permission>",
		func(ctx context.Context, r *accountrealm.Realm, role, perm string) error {
			return r.GrantRolePermission(ctx, role, perm)
		})(cmdCtx, args)
}
