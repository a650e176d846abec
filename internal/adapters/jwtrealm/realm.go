// Package jwtrealm authenticates bearer JWTs signed with a shared HMAC secret
// or by keys published at a JWKS endpoint. Roles and permissions are read from
// token claims with JMESPath expressions.
package jwtrealm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/gatekeeper/internal/adapters/memcache"
	"github.com/target/gatekeeper/internal/clock"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/permission"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

var (
	_ ports.Realm             = (*Realm)(nil)
	_ ports.InvalidationAware = (*Realm)(nil)
	_ ports.LogoutAware       = (*Realm)(nil)
	_ ports.Destroyer         = (*Realm)(nil)
)

var (
	hmacAlgs = []string{"HS256", "HS384", "HS512"}
	jwksAlgs = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "PS256", "EdDSA"}
)

// Options configures a Realm. Exactly one of Secret, JWKSURL or Keyfunc must be set.
type Options struct {
	Name    string      // Required
	Secret  []byte      // HMAC signing secret
	JWKSURL string      // JWKS endpoint; keys refresh in the background until Destroy
	Keyfunc jwt.Keyfunc // Explicit key resolution; AllowedAlgs must be set with it

	AllowedAlgs []string // Optional: defaults follow the key source
	Issuer      string   // Optional: enforced when set
	Audience    string   // Optional: enforced when set
	Leeway      time.Duration

	RolesPath       string // Optional JMESPath expression, e.g. "roles" or "realm_access.roles"
	PermissionsPath string // Optional JMESPath expression
	GroupsPath      string // Optional JMESPath expression; requires Groups
	Groups          ports.RoleMapper

	GrantTTL      time.Duration // Optional: defaults to 1h, never beyond token expiry
	GrantCapacity int           // Optional: defaults to 10000
	Clock         clock.Clock   // Optional
	Logger        *slog.Logger  // Optional
}

// Realm validates BearerTokens. The grants carried by the most recent token of
// each subject are retained for AuthorizationInfo until they expire.
type Realm struct {
	name    string
	keyfunc jwt.Keyfunc
	algs    []string
	issuer  string
	aud     string
	leeway  time.Duration

	rolesPath, permsPath, groupsPath string
	groups                           ports.RoleMapper

	grants   *memcache.LRU[domainauth.AuthorizationInfo]
	grantTTL time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	cancel   context.CancelFunc

	mu          sync.RWMutex
	invalidator ports.AuthorizationInvalidator
}

// New creates a JWT realm. For a JWKS source the initial key fetch uses ctx;
// background refreshes stop on Destroy.
func New(ctx context.Context, opts Options) (*Realm, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("realm name is required")
	}
	sources := 0
	for _, set := range []bool{len(opts.Secret) > 0, opts.JWKSURL != "", opts.Keyfunc != nil} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return nil, errors.New("exactly one of Secret, JWKSURL or Keyfunc is required")
	}
	for _, expr := range []string{opts.RolesPath, opts.PermissionsPath, opts.GroupsPath} {
		if expr == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("invalid claim path %q: %w", expr, err)
		}
	}
	if opts.GroupsPath != "" && opts.Groups == nil {
		return nil, errors.New("GroupsPath requires a group mapper")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.GrantTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	capacity := opts.GrantCapacity
	if capacity <= 0 {
		capacity = 10000
	}
	clk := clock.OrReal(opts.Clock)

	r := &Realm{
		name:       opts.Name,
		algs:       opts.AllowedAlgs,
		issuer:     opts.Issuer,
		aud:        opts.Audience,
		leeway:     max(opts.Leeway, 0),
		rolesPath:  opts.RolesPath,
		permsPath:  opts.PermissionsPath,
		groupsPath: opts.GroupsPath,
		groups:     opts.Groups,
		grants:     memcache.NewLRU[domainauth.AuthorizationInfo](memcache.LRUOptions{Capacity: capacity, Clock: clk}),
		grantTTL:   ttl,
		clock:      clk,
		logger:     logger.With("component", "jwt_realm", "realm", opts.Name),
		cancel:     func() {},
	}

	switch {
	case len(opts.Secret) > 0:
		secret := slices.Clone(opts.Secret)
		r.keyfunc = func(*jwt.Token) (any, error) { return secret, nil }
		if len(r.algs) == 0 {
			r.algs = hmacAlgs
		}
	case opts.JWKSURL != "":
		kctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		kf, err := keyfunc.NewDefaultCtx(kctx, []string{opts.JWKSURL})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("jwks init failed: %w", err)
		}
		r.keyfunc = kf.Keyfunc
		r.cancel = cancel
		if len(r.algs) == 0 {
			r.algs = jwksAlgs
		}
	default:
		if len(r.algs) == 0 {
			return nil, errors.New("AllowedAlgs is required with a custom Keyfunc")
		}
		r.keyfunc = opts.Keyfunc
	}
	return r, nil
}

func (r *Realm) Name() string { return r.name }

func (r *Realm) Supports(token domainauth.Token) bool {
	return token != nil && token.Type() == domainauth.TokenBearer
}

func (r *Realm) parser() *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(r.algs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(r.leeway),
		jwt.WithTimeFunc(r.clock.Now),
	}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	if r.aud != "" {
		opts = append(opts, jwt.WithAudience(r.aud))
	}
	return jwt.NewParser(opts...)
}

// Authenticate verifies signature, expiry, issuer and audience. The principal is the sub claim.
func (r *Realm) Authenticate(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error) {
	raw := strings.TrimSpace(string(token.Credentials()))
	if raw == "" {
		return domainauth.AuthenticationInfo{}, apperrors.IncorrectCredentials("bearer")
	}

	claims := jwt.MapClaims{}
	if _, err := r.parser().ParseWithClaims(raw, claims, r.keyfunc); err != nil {
		sub, _ := claims.GetSubject()
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domainauth.AuthenticationInfo{}, apperrors.Wrap(err, apperrors.ErrCodeExpiredCredentials,
				fmt.Sprintf("bearer token for %q has expired", sub))
		}
		return domainauth.AuthenticationInfo{}, apperrors.Wrap(err, apperrors.ErrCodeIncorrectCredentials,
			"bearer token rejected")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domainauth.AuthenticationInfo{}, apperrors.New(apperrors.ErrCodeIncorrectCredentials,
			"bearer token has no subject")
	}

	info := r.extractGrants(ctx, claims)
	r.grants.Set(sub, info, r.ttlFor(claims))
	r.invalidate(ctx, sub)

	return domainauth.AuthenticationInfo{
		Principals: domainauth.NewPrincipalCollection(r.name, sub),
	}, nil
}

func (r *Realm) ttlFor(claims jwt.MapClaims) time.Duration {
	ttl := r.grantTTL
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if untilExp := exp.Sub(r.clock.Now()); untilExp < ttl {
			ttl = untilExp
		}
	}
	// Set treats ttl <= 0 as no expiry.
	return max(ttl, time.Nanosecond)
}

func (r *Realm) extractGrants(ctx context.Context, claims jwt.MapClaims) domainauth.AuthorizationInfo {
	data := map[string]any(claims)
	roles := r.search(ctx, r.rolesPath, data)

	var info domainauth.AuthorizationInfo
	if r.groups != nil {
		info = r.groups.Grants(r.search(ctx, r.groupsPath, data), roles...)
	} else {
		info = domainauth.NewAuthorizationInfo(roles, nil)
	}

	var perms []permission.Permission
	for _, raw := range r.search(ctx, r.permsPath, data) {
		p, err := permission.Parse(raw)
		if err != nil {
			r.logger.WarnContext(ctx, "ignoring malformed permission claim", "permission", raw, "error", err)
			continue
		}
		perms = append(perms, p)
	}
	return info.Union(domainauth.NewAuthorizationInfo(nil, perms))
}

// search evaluates expr and flattens the result into strings. A single string
// is split on whitespace, the OAuth "scope" convention.
func (r *Realm) search(ctx context.Context, expr string, data any) []string {
	if expr == "" {
		return nil
	}
	res, err := jmespath.Search(expr, data)
	if err != nil {
		r.logger.WarnContext(ctx, "claim path evaluation failed", "path", expr, "error", err)
		return nil
	}
	switch v := res.(type) {
	case string:
		return strings.Fields(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case nil:
		return nil
	default:
		r.logger.DebugContext(ctx, "claim path did not yield strings", "path", expr)
		return nil
	}
}

// AuthorizationInfo serves the grants retained from the subject's last token.
func (r *Realm) AuthorizationInfo(
	_ context.Context,
	principals domainauth.PrincipalCollection,
) (domainauth.AuthorizationInfo, error) {
	subs := principals.FromRealm(r.name)
	if len(subs) == 0 {
		return domainauth.AuthorizationInfo{}, apperrors.UnknownAccount(principals.Primary())
	}
	info, ok := r.grants.Get(subs[0])
	if !ok {
		return domainauth.AuthorizationInfo{}, apperrors.UnknownAccount(subs[0])
	}
	return info, nil
}

func (r *Realm) SetInvalidator(inv ports.AuthorizationInvalidator) {
	r.mu.Lock()
	r.invalidator = inv
	r.mu.Unlock()
}

func (r *Realm) invalidate(ctx context.Context, sub string) {
	r.mu.RLock()
	inv := r.invalidator
	r.mu.RUnlock()
	if inv != nil {
		inv.Invalidate(ctx, r.name, sub)
	}
}

// OnLogout forgets the grants retained for the realm's subjects.
func (r *Realm) OnLogout(_ context.Context, principals domainauth.PrincipalCollection) {
	for _, sub := range principals.FromRealm(r.name) {
		r.grants.Delete(sub)
	}
}

// Destroy stops the JWKS refresh loop.
func (r *Realm) Destroy(context.Context) error {
	r.cancel()
	return nil
}
