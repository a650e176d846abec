package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/adapters/accountrealm"
	"github.com/target/gatekeeper/internal/adapters/authroles"
	"github.com/target/gatekeeper/internal/adapters/jwtrealm"
	"github.com/target/gatekeeper/internal/adapters/memrealm"
	"github.com/target/gatekeeper/internal/adapters/oidc"
	"github.com/target/gatekeeper/internal/clock"
	"github.com/target/gatekeeper/internal/data"
	"github.com/target/gatekeeper/internal/data/cryptoutil"
	"github.com/target/gatekeeper/internal/ports"
)

// RealmDeps contains what the realm builders need.
type RealmDeps struct {
	Config     config.AppConfig
	DB         *sql.DB              // Required when the postgres realm is enabled
	HTTPClient *http.Client         // Optional: used for OIDC discovery and code exchange
	Clock      clock.Clock          // Optional
	Logger     *slog.Logger         // Optional
	Alerts     accountrealm.Alerter // Optional: account realms report attempt-limit events here
}

// BuildRealms constructs the enabled realms in AUTHC_REALMS order. Realms
// already built are destroyed when a later one fails.
func BuildRealms(ctx context.Context, deps RealmDeps) ([]ports.Realm, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	mapper, err := authroles.FromConfig(deps.Config.Authc.RoleMapping)
	if err != nil {
		return nil, fmt.Errorf("role mapping: %w", err)
	}

	realms := make([]ports.Realm, 0, len(deps.Config.Authc.Realms))
	for _, kind := range deps.Config.Authc.Realms {
		r, buildErr := buildRealm(ctx, kind, deps, mapper)
		if buildErr != nil {
			buildErr = fmt.Errorf("build %s realm: %w", kind, buildErr)
			return nil, errors.Join(buildErr, destroyRealms(ctx, realms))
		}
		deps.Logger.InfoContext(ctx, "realm configured", "kind", kind, "realm", r.Name())
		realms = append(realms, r)
	}
	if len(realms) == 0 {
		return nil, errors.New("no realms enabled (AUTHC_REALMS)")
	}
	return realms, nil
}

//nolint:ireturn // each realm kind has its own concrete type.
func buildRealm(
	ctx context.Context,
	kind config.RealmKind,
	deps RealmDeps,
	mapper *authroles.StaticRoleMapper,
) (ports.Realm, error) {
	switch kind {
	case config.RealmStatic:
		return buildStaticRealm(ctx, deps)
	case config.RealmPostgres:
		return PostgresRealm(deps)
	case config.RealmJWT:
		return buildJWTRealm(ctx, deps, mapper)
	case config.RealmOIDC:
		return buildOIDCRealm(ctx, deps, mapper)
	default:
		return nil, fmt.Errorf("unknown realm kind %q", kind)
	}
}

func buildStaticRealm(ctx context.Context, deps RealmDeps) (*accountrealm.Realm, error) {
	sc := deps.Config.Authc.Static
	matcher, err := cryptoutil.MatcherFor(sc.Matcher)
	if err != nil {
		return nil, err
	}
	store := memrealm.NewStore(deps.Clock)
	if seedErr := memrealm.Seed(ctx, store, memrealm.SeedOptions{
		Account:         sc,
		RolePermissions: deps.Config.Authc.RoleMapping.PermissionsByRole(),
		AllowPlaintext:  deps.Config.IsDev,
		Logger:          deps.Logger,
	}); seedErr != nil {
		return nil, seedErr
	}
	return accountrealm.New(accountrealm.Options{
		Name:        sc.Name,
		Store:       store,
		Matcher:     matcher,
		MaxAttempts: sc.MaxAttempts,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		Alerts:      deps.Alerts,
	})
}

// PostgresRealm builds the account realm over the Postgres account tables.
func PostgresRealm(deps RealmDeps) (*accountrealm.Realm, error) {
	if deps.DB == nil {
		return nil, errors.New("postgres realm requires a database connection")
	}
	pc := deps.Config.Authc.Postgres
	matcher, err := cryptoutil.MatcherFor(pc.Matcher)
	if err != nil {
		return nil, err
	}
	return accountrealm.New(accountrealm.Options{
		Name:        pc.Name,
		Store:       data.NewAccountRepo(deps.DB),
		Matcher:     matcher,
		MaxAttempts: pc.MaxAttempts,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		Alerts:      deps.Alerts,
	})
}

func buildJWTRealm(ctx context.Context, deps RealmDeps, mapper *authroles.StaticRoleMapper) (*jwtrealm.Realm, error) {
	jc := deps.Config.Authc.JWT
	var secret []byte
	if jc.Secret != "" {
		secret = []byte(jc.Secret)
	}
	return jwtrealm.New(ctx, jwtrealm.Options{
		Name:            jc.Name,
		Secret:          secret,
		JWKSURL:         jc.JWKSURL,
		Issuer:          jc.Issuer,
		Audience:        jc.Audience,
		Leeway:          jc.Leeway,
		RolesPath:       jc.RolesPath,
		PermissionsPath: jc.PermissionsPath,
		GroupsPath:      jc.GroupsPath,
		Groups:          mapper,
		GrantTTL:        jc.GrantTTL,
		GrantCapacity:   jc.GrantCapacity,
		Clock:           deps.Clock,
		Logger:          deps.Logger,
	})
}

// OIDCRealm builds the authorization-code realm alone, with the configured role mapping.
func OIDCRealm(ctx context.Context, deps RealmDeps) (*oidc.Realm, error) {
	mapper, err := authroles.FromConfig(deps.Config.Authc.RoleMapping)
	if err != nil {
		return nil, fmt.Errorf("role mapping: %w", err)
	}
	return buildOIDCRealm(ctx, deps, mapper)
}

func buildOIDCRealm(ctx context.Context, deps RealmDeps, mapper *authroles.StaticRoleMapper) (*oidc.Realm, error) {
	oc := deps.Config.Authc.OIDC
	return oidc.New(ctx, oidc.Options{
		Name:         oc.Name,
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURL,
		DiscoveryURL: oc.DiscoveryURL,
		Scopes:       oc.Scopes(),
		Roles:        mapper,
		HTTPClient:   deps.HTTPClient,
		Clock:        deps.Clock,
		Logger:       deps.Logger,
	})
}

func destroyRealms(ctx context.Context, realms []ports.Realm) error {
	var errs []error
	for _, r := range realms {
		if d, ok := r.(ports.Destroyer); ok {
			if err := d.Destroy(ctx); err != nil {
				errs = append(errs, fmt.Errorf("destroy realm %s: %w", r.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
