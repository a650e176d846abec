package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/adapters/accountrealm"
	"github.com/target/gatekeeper/internal/adapters/memcache"
	"github.com/target/gatekeeper/internal/adapters/reaper"
	redisadapter "github.com/target/gatekeeper/internal/adapters/redis"
	"github.com/target/gatekeeper/internal/clock"
	"github.com/target/gatekeeper/internal/observability/notify/pagerduty"
	"github.com/target/gatekeeper/internal/observability/notify/slack"
	"github.com/target/gatekeeper/internal/observability/statsd"
	"github.com/target/gatekeeper/internal/ports"
	"github.com/target/gatekeeper/internal/service"
	"github.com/target/gatekeeper/internal/service/securitynotifier"
)

// BuildAuthorizationCache returns the cache selected by AUTHZ_CACHE_MODE, or
// nil when caching is disabled.
//
//nolint:ireturn // the backend is chosen at runtime.
func BuildAuthorizationCache(
	cfg config.CacheConfig,
	client redis.UniversalClient,
	clk clock.Clock,
) (ports.AuthorizationCache, error) {
	switch cfg.Mode {
	case config.CacheModeNone:
		return nil, nil
	case config.CacheModeLocal, "":
		return memcache.NewAuthorizationCache(memcache.AuthorizationCacheOptions{
			LRU: memcache.LRUOptions{Capacity: cfg.Capacity, Clock: clk},
			TTL: cfg.TTL,
		}), nil
	case config.CacheModeRedis:
		if client == nil {
			return nil, errors.New("redis authorization cache requires a redis client")
		}
		return redisadapter.NewAuthorizationCache(redisadapter.AuthorizationCacheOptions{
			Client: client,
			Prefix: cfg.KeyPrefix,
			TTL:    cfg.TTL,
		})
	default:
		return nil, fmt.Errorf("unknown authorization cache mode %q", cfg.Mode)
	}
}

// BuildMetrics creates the StatsD client. A disabled config yields a client
// that drops every metric.
func BuildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) (*statsd.Client, error) {
	return statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
}

// BuildNotifier creates the security notifier with every enabled sink. The
// service has no sinks when notifications are disabled.
func BuildNotifier(
	cfg config.ObservabilityNotificationsConfig,
	httpClient *http.Client,
	clk clock.Clock,
	logger *slog.Logger,
) (*securitynotifier.Service, error) {
	var sinks []securitynotifier.SinkRegistration
	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL: cfg.Slack.WebhookURL,
			Channel:    cfg.Slack.Channel,
			Username:   cfg.Slack.Username,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			Client:     httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("slack notifier: %w", err)
		}
		sinks = append(sinks, securitynotifier.SinkRegistration{Name: "slack", Sink: client})
	}
	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
			Client:     httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("pagerduty notifier: %w", err)
		}
		sinks = append(sinks, securitynotifier.SinkRegistration{Name: "pagerduty", Sink: client})
	}
	return securitynotifier.NewService(securitynotifier.Options{
		Logger: logger,
		Sinks:  sinks,
		Clock:  clk,
	}), nil
}

// SecurityDeps groups the inputs of BuildSecurity.
type SecurityDeps struct {
	Config  config.AppConfig
	Realms  []ports.Realm            // Required
	Cache   ports.AuthorizationCache // Optional
	Metrics statsd.Sink              // Optional
	Clock   clock.Clock              // Optional
	Logger  *slog.Logger             // Optional
}

// Security is the assembled security stack.
type Security struct {
	Manager *service.SecurityManager
	// Reaper sweeps idle sessions; nil when SESSION_SWEEP_ENABLED is false.
	Reaper *service.SessionReaper
}

// BuildSecurity wires authenticator, authorizer, session manager and reaper
// over realms.
func BuildSecurity(deps SecurityDeps) (*Security, error) {
	authn, err := service.NewRealmAuthenticator(service.RealmAuthenticatorOptions{
		Realms:   deps.Realms,
		Strategy: deps.Config.Authc.Strategy,
		Logger:   deps.Logger,
		Metrics:  deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("authenticator: %w", err)
	}
	authz, err := service.NewAuthorizer(service.AuthorizerOptions{
		Realms: deps.Realms,
		Cache:  deps.Cache,
		Logger: deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("authorizer: %w", err)
	}
	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Config:  deps.Config.Session,
		Clock:   deps.Clock,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	})
	manager, err := service.NewSecurityManager(service.SecurityManagerOptions{
		Authenticator: authn,
		Authorizer:    authz,
		Sessions:      sessions,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("security manager: %w", err)
	}

	sec := &Security{Manager: manager}
	if deps.Config.Session.SweepEnabled {
		sec.Reaper, err = service.NewSessionReaper(service.SessionReaperOptions{
			Sessions: sessions,
			Interval: deps.Config.Session.SweepInterval,
			Logger:   deps.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("session reaper: %w", err)
		}
	}
	return sec, nil
}

// App owns every long-lived resource of a configured gatekeeper process.
type App struct {
	Config   config.AppConfig
	Logger   *slog.Logger
	DB       *sql.DB
	Redis    redis.UniversalClient
	Metrics  *statsd.Client
	Notifier *securitynotifier.Service
	Realms   []ports.Realm
	Security *Security

	// reaperRunner drives Security.Reaper in the background; nil when sweeping is off.
	reaperRunner *reaper.Runner
}

// AppOptions configures Build.
type AppOptions struct {
	Config     config.AppConfig
	Logger     *slog.Logger // Optional
	Clock      clock.Clock  // Optional
	HTTPClient *http.Client // Optional
}

// Build connects the backends the configuration needs and assembles the
// security stack. On error every resource opened so far is released.
func Build(ctx context.Context, opts AppOptions) (_ *App, err error) {
	cfg := opts.Config
	if validateErr := ValidateConfig(&cfg); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			err = errors.Join(err, app.Close(ctx))
		}
	}()

	dbCfg := DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	if cfg.UsesPostgres() {
		if app.DB, err = ConnectDB(ctx, dbCfg); err != nil {
			return nil, err
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if _, err = RunMigrations(ctx, app.DB, logger); err != nil {
				return nil, err
			}
		}
	}
	if cfg.UsesRedis() {
		if app.Redis, err = ConnectRedis(ctx, dbCfg); err != nil {
			return nil, err
		}
	}
	if app.Metrics, err = BuildMetrics(cfg.Observability.Metrics, logger); err != nil {
		return nil, err
	}

	if app.Notifier, err = BuildNotifier(cfg.Observability.Notifications, opts.HTTPClient, opts.Clock, logger); err != nil {
		return nil, err
	}

	cache, err := BuildAuthorizationCache(cfg.Cache, app.Redis, opts.Clock)
	if err != nil {
		return nil, err
	}
	deps := RealmDeps{
		Config:     cfg,
		DB:         app.DB,
		HTTPClient: opts.HTTPClient,
		Clock:      opts.Clock,
		Logger:     logger,
	}
	if app.Notifier.Enabled() {
		deps.Alerts = app.Notifier
	}
	if app.Realms, err = BuildRealms(ctx, deps); err != nil {
		return nil, err
	}
	if app.Security, err = BuildSecurity(SecurityDeps{
		Config:  cfg,
		Realms:  app.Realms,
		Cache:   cache,
		Metrics: app.Metrics,
		Clock:   opts.Clock,
		Logger:  logger,
	}); err != nil {
		return nil, err
	}
	if app.Security.Reaper != nil {
		if app.reaperRunner, err = reaper.NewRunner(reaper.RunnerOptions{Loop: app.Security.Reaper, Logger: logger}); err != nil {
			return nil, err
		}
		if err = app.reaperRunner.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Realm returns the configured realm called name.
//
//nolint:ireturn // callers type-assert the capability they need.
func (a *App) Realm(name string) (ports.Realm, bool) {
	for _, r := range a.Realms {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// AccountRealm returns the account-backed realm called name. An empty name
// selects the first account realm.
func (a *App) AccountRealm(name string) (*accountrealm.Realm, error) {
	for _, r := range a.Realms {
		ar, ok := r.(*accountrealm.Realm)
		if ok && (name == "" || ar.Name() == name) {
			return ar, nil
		}
	}
	if name == "" {
		return nil, errors.New("no account realm configured (enable static or postgres in AUTHC_REALMS)")
	}
	return nil, fmt.Errorf("no account realm named %q", name)
}

// Close tears down realms and releases connections. It is safe on a
// partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.reaperRunner != nil {
		if err := a.reaperRunner.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop session reaper: %w", err))
		}
	}
	if a.Security != nil {
		if err := a.Security.Manager.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if err := destroyRealms(ctx, a.Realms); err != nil {
		errs = append(errs, err)
	}
	if a.Notifier != nil {
		a.Notifier.Close()
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metrics: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
