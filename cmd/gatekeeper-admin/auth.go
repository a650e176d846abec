package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/target/gatekeeper/internal/bootstrap"
	"github.com/target/gatekeeper/internal/data/cryptoutil"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/permission"
	"github.com/target/gatekeeper/internal/ports"
	"github.com/target/gatekeeper/internal/service"
)

type hashOptions struct {
	Cost int
}

func runHashPassword(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Err)
	var opts hashOptions
	fs.IntVar(&opts.Cost, "cost", 0, "bcrypt cost (0 uses the library default)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pw, err := readSecret(cmdCtx, passwordEnv)
	if err != nil {
		return err
	}
	hash, err := cryptoutil.HashPassword([]byte(pw), opts.Cost)
	if err != nil {
		return err
	}
	return writeln(cmdCtx.Out, string(hash))
}

func runImplies(cmdCtx *commandContext, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: implies <granted> <requested>")
	}
	ok, err := permission.Implies(args[0], args[1])
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "%s implies %s: %t\n", args[0], args[1], ok)
}

type loginOptions struct {
	Username string
	Host     string
	Bearer   bool
	Check    []string
}

func parseLoginFlags(args []string, out io.Writer) (loginOptions, error) {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts loginOptions
	var check string
	fs.BoolVar(&opts.Bearer, "bearer", false, "Log in with a bearer token from $GATEKEEPER_TOKEN or stdin")
	fs.StringVar(&opts.Host, "host", "", "Originating host recorded on the session")
	fs.StringVar(&check, "check", "", "Comma-separated permissions to test after login")
	if err := fs.Parse(args); err != nil {
		return loginOptions{}, err
	}
	opts.Check = splitList(check)

	rest := fs.Args()
	switch {
	case opts.Bearer && len(rest) != 0:
		return loginOptions{}, errors.New("--bearer takes no username")
	case !opts.Bearer && len(rest) != 1:
		return loginOptions{}, errors.New("usage: login [flags] <username>")
	case !opts.Bearer:
		opts.Username = rest[0]
	}
	return opts, nil
}

func loginToken(cmdCtx *commandContext, opts loginOptions) (domainauth.Token, error) { //nolint:ireturn // either token kind.
	if opts.Bearer {
		raw, err := readSecret(cmdCtx, tokenEnv)
		if err != nil {
			return nil, err
		}
		return domainauth.NewBearerToken(strings.TrimSpace(raw), opts.Host), nil
	}
	pw, err := readSecret(cmdCtx, passwordEnv)
	if err != nil {
		return nil, err
	}
	return domainauth.NewUsernamePasswordToken(opts.Username, []byte(pw), opts.Host), nil
}

func runLogin(cmdCtx *commandContext, args []string) error {
	opts, err := parseLoginFlags(args, cmdCtx.Err)
	if err != nil {
		return err
	}
	token, err := loginToken(cmdCtx, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	app, err := bootstrap.Build(ctx, bootstrap.AppOptions{Config: cmdCtx.Config, Logger: cmdCtx.Logger})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			cmdCtx.Logger.Warn("close app failed", "error", closeErr)
		}
	}()

	manager := app.Security.Manager
	res, err := manager.Login(ctx, "", token)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	info, err := manager.AuthorizationInfo(ctx, res.SessionID)
	if err != nil {
		return fmt.Errorf("authorization info: %w", err)
	}
	if err := printLogin(cmdCtx.Out, res, info); err != nil {
		return err
	}
	for _, perm := range opts.Check {
		ok, checkErr := manager.IsPermitted(ctx, res.SessionID, perm)
		if checkErr != nil {
			return fmt.Errorf("check %q: %w", perm, checkErr)
		}
		if writeErr := writef(cmdCtx.Out, "permitted %s: %t\n", perm, ok); writeErr != nil {
			return writeErr
		}
	}
	return manager.Logout(ctx, res.SessionID)
}

func printLogin(w io.Writer, res service.LoginResult, info domainauth.AuthorizationInfo) error {
	if err := writef(w, "session: %s\n", res.SessionID); err != nil {
		return err
	}
	if err := writef(w, "primary: %s\n", res.Principals.Primary()); err != nil {
		return err
	}
	for _, realm := range res.Principals.RealmNames() {
		if err := writef(w, "principals[%s]: %s\n", realm, strings.Join(res.Principals.FromRealm(realm), ", ")); err != nil {
			return err
		}
	}
	for _, f := range res.Failures {
		if err := writef(w, "realm failure: %s\n", f.Error()); err != nil {
			return err
		}
	}
	if err := writef(w, "roles: %s\n", strings.Join(info.Roles, ", ")); err != nil {
		return err
	}
	perms := make([]string, 0, len(info.Permissions))
	for _, p := range info.Permissions {
		perms = append(perms, p.String())
	}
	return writef(w, "permissions: %s\n", strings.Join(perms, ", "))
}

func runOIDCURL(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("oidc-url", flag.ContinueOnError)
	fs.SetOutput(cmdCtx.Err)
	var in ports.BeginInput
	fs.StringVar(&in.Prompt, "prompt", "", "Prompt sent to the provider (login, consent, select_account)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	realm, err := bootstrap.OIDCRealm(ctx, bootstrap.RealmDeps{Config: cmdCtx.Config, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("build oidc realm: %w", err)
	}
	out, err := realm.Begin(ctx, in)
	if err != nil {
		return err
	}
	return writef(cmdCtx.Out, "url: %s\nstate: %s\nnonce: %s\n", out.AuthURL, out.State, out.Nonce)
}
