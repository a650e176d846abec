// Package oidc provides the OAuth2/OIDC authorization-code realm.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/gatekeeper/internal/adapters/memcache"
	"github.com/target/gatekeeper/internal/clock"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/ports"
)

var (
	_ ports.RedirectRealm     = (*Realm)(nil)
	_ ports.InvalidationAware = (*Realm)(nil)
	_ ports.LogoutAware       = (*Realm)(nil)
)

const defaultIdentityLifetime = time.Hour

// Options configures the OIDC realm.
type Options struct {
	Name         string           // Required
	ClientID     string           // Required
	ClientSecret string           // Required
	RedirectURL  string           // Required
	DiscoveryURL string           // Required; issuer URL or its .well-known document
	Scopes       []string         // Optional: defaults to openid profile email
	Roles        ports.RoleMapper // Optional: maps provider groups to grants
	HTTPClient   *http.Client     // Optional, defaults to a 30s-timeout client
	// GrantCapacity bounds the number of identities whose grants are retained.
	GrantCapacity int
	Clock         clock.Clock  // Optional
	Logger        *slog.Logger // Optional
}

// Realm authenticates AuthorizationCodeTokens: it exchanges the code at the
// provider, verifies the ID token and its nonce, and maps groups to grants.
type Realm struct {
	name       string
	config     *oauth2.Config
	httpClient *http.Client
	provider   *gooidc.Provider
	verifier   *gooidc.IDTokenVerifier
	roles      ports.RoleMapper
	grants     *memcache.LRU[domainauth.AuthorizationInfo]
	clock      clock.Clock
	logger     *slog.Logger

	mu          sync.RWMutex
	invalidator ports.AuthorizationInvalidator
}

// New performs discovery and returns a ready realm.
func New(ctx context.Context, opts Options) (*Realm, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, errors.New("realm name is required")
	}
	if opts.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if opts.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if opts.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if opts.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	clk := clock.OrReal(opts.Clock)
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{gooidc.ScopeOpenID, "profile", "email"}
	}
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		return nil, errors.New("scopes must include openid")
	}

	issuer := strings.TrimSuffix(opts.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(gooidc.ClientContext(ctx, httpClient), issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	capacity := opts.GrantCapacity
	if capacity <= 0 {
		capacity = 10000
	}
	return &Realm{
		name: opts.Name,
		config: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       slices.Clone(scopes),
			Endpoint:     op.Endpoint(),
		},
		httpClient: httpClient,
		provider:   op,
		verifier:   op.Verifier(&gooidc.Config{ClientID: opts.ClientID, Now: clk.Now}),
		roles:      opts.Roles,
		grants:     memcache.NewLRU[domainauth.AuthorizationInfo](memcache.LRUOptions{Capacity: capacity, Clock: clk}),
		clock:      clk,
		logger:     logger.With("component", "oidc_realm", "realm", opts.Name),
	}, nil
}

func (r *Realm) Name() string { return r.name }

func (r *Realm) Supports(token domainauth.Token) bool {
	return token != nil && token.Type() == domainauth.TokenAuthorizationCode
}

// Begin builds the provider authorization URL with fresh state and nonce. The
// caller keeps both and hands them back in the AuthorizationCodeToken.
func (r *Realm) Begin(_ context.Context, in ports.BeginInput) (ports.BeginOutput, error) {
	state, err := generateRandomString(32)
	if err != nil {
		return ports.BeginOutput{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return ports.BeginOutput{}, fmt.Errorf("generate nonce: %w", err)
	}
	prompt := in.Prompt
	if prompt == "" {
		prompt = "select_account"
	}
	authURL := r.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", prompt),
	)
	return ports.BeginOutput{AuthURL: authURL, State: state, Nonce: nonce}, nil
}

type codeToken interface {
	domainauth.Token
	Nonce() string
}

// Authenticate exchanges the code and verifies the ID token. The principal is
// the provider's account name (samaccountname, preferred_username or sub).
func (r *Realm) Authenticate(ctx context.Context, token domainauth.Token) (domainauth.AuthenticationInfo, error) {
	ct, ok := token.(codeToken)
	if !ok || !r.Supports(token) {
		kind := ""
		if token != nil {
			kind = string(token.Type())
		}
		return domainauth.AuthenticationInfo{}, apperrors.UnsupportedToken(kind)
	}
	code := string(ct.Credentials())
	if code == "" {
		return domainauth.AuthenticationInfo{}, apperrors.New(apperrors.ErrCodeIncorrectCredentials,
			"authorization code is required")
	}
	if ct.Nonce() == "" {
		return domainauth.AuthenticationInfo{}, apperrors.New(apperrors.ErrCodeIncorrectCredentials,
			"nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, r.httpClient)
	tok, err := r.config.Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return domainauth.AuthenticationInfo{}, apperrors.Wrap(err, apperrors.ErrCodeIncorrectCredentials,
				"authorization code rejected")
		}
		return domainauth.AuthenticationInfo{}, fmt.Errorf("exchange code for token: %w", err)
	}

	id, err := r.identity(ctx, tok, ct.Nonce())
	if err != nil {
		return domainauth.AuthenticationInfo{}, err
	}
	if id.Subject == "" {
		return domainauth.AuthenticationInfo{}, apperrors.New(apperrors.ErrCodeIncorrectCredentials,
			"identity provider returned no subject")
	}

	r.grants.Set(id.Subject, r.grantsFor(id), max(id.ExpiresAt.Sub(r.clock.Now()), time.Nanosecond))
	r.invalidate(ctx, id.Subject)
	r.logger.DebugContext(ctx, "oidc identity verified", "subject", id.Subject, "groups", len(id.Groups))

	return domainauth.AuthenticationInfo{
		Principals: domainauth.NewPrincipalCollection(r.name, id.Subject),
	}, nil
}

func (r *Realm) identity(ctx context.Context, tok *oauth2.Token, nonce string) (domainauth.Identity, error) {
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeIncorrectCredentials, "no id_token issued")
	}
	idTok, err := r.verifier.Verify(ctx, rawID)
	if err != nil {
		var expired *gooidc.TokenExpiredError
		if errors.As(err, &expired) {
			return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeExpiredCredentials, "id_token expired")
		}
		return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeIncorrectCredentials, "id_token rejected")
	}
	if idTok.Nonce != nonce {
		return domainauth.Identity{}, apperrors.New(apperrors.ErrCodeIncorrectCredentials, "invalid nonce")
	}

	var claims identityClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	id := claims.identity()

	if id.Email == "" || id.Subject == "" || len(id.Groups) == 0 {
		if fillErr := r.fillFromUserInfo(ctx, tok, &id); fillErr != nil {
			r.logger.WarnContext(ctx, "userinfo lookup failed", "error", fillErr)
		}
	}

	id.ExpiresAt = r.clock.Now().Add(defaultIdentityLifetime)
	if !tok.Expiry.IsZero() {
		id.ExpiresAt = tok.Expiry
	}
	return id, nil
}

func (r *Realm) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, id *domainauth.Identity) error {
	ui, err := r.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var claims identityClaims
	if claimsErr := ui.Claims(&claims); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fill(id, claims.identity())
	return nil
}

func (r *Realm) grantsFor(id domainauth.Identity) domainauth.AuthorizationInfo {
	if r.roles == nil {
		return domainauth.AuthorizationInfo{}
	}
	return r.roles.Grants(id.Groups)
}

// AuthorizationInfo serves the grants mapped at the identity's last login.
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

// OnLogout forgets retained grants.
func (r *Realm) OnLogout(_ context.Context, principals domainauth.PrincipalCollection) {
	for _, sub := range principals.FromRealm(r.name) {
		r.grants.Delete(sub)
	}
}

// identityClaims is a superset of standard OIDC and AD/ADFS claim shapes.
type identityClaims struct {
	Sub               string   `json:"sub"`
	SamAccountName    string   `json:"samaccountname"`
	PreferredUsername string   `json:"preferred_username"`
	Name              string   `json:"name"`
	FirstName         string   `json:"firstname"`
	LastName          string   `json:"lastname"`
	Mail              string   `json:"mail"`
	Email             string   `json:"email"`
	MemberOf          []string `json:"memberof"`
	Groups            []string `json:"groups"`
}

func (c identityClaims) identity() domainauth.Identity {
	name := c.Name
	if name == "" {
		name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	groups := c.MemberOf
	if len(groups) == 0 {
		groups = c.Groups
	}
	return domainauth.Identity{
		Subject: firstNonEmpty(c.SamAccountName, c.PreferredUsername, c.Sub),
		Email:   firstNonEmpty(c.Mail, c.Email),
		Name:    name,
		Groups:  slices.Clone(groups),
	}
}

// fill copies fields from src that dst is missing.
func fill(dst *domainauth.Identity, src domainauth.Identity) {
	if dst.Subject == "" {
		dst.Subject = src.Subject
	}
	if dst.Email == "" {
		dst.Email = src.Email
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if len(dst.Groups) == 0 {
		dst.Groups = src.Groups
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
