package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/gatekeeper/config"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/observability/metrics"
	"github.com/target/gatekeeper/internal/observability/statsd"
	"github.com/target/gatekeeper/internal/ports"
)

// RealmAuthenticatorOptions groups dependencies for RealmAuthenticator.
type RealmAuthenticatorOptions struct {
	Realms      []ports.Realm                     // Required: consulted in this order, names unique
	Strategy    config.AuthStrategy               // Optional: defaults to at_least_one_successful
	MergePolicy domainauth.CredentialsMergePolicy // Optional: defaults to keeping the first credentials
	Logger      *slog.Logger                      // Optional: structured logger
	Metrics     statsd.Sink                       // Optional: metrics sink (StatsD-compatible)
}

// RealmAuthenticator consults an ordered set of realms for a token and merges
// the identities they establish according to the configured strategy.
type RealmAuthenticator struct {
	realms   []ports.Realm
	strategy config.AuthStrategy
	merge    domainauth.CredentialsMergePolicy
	logger   *slog.Logger
	metrics  statsd.Sink
}

// Attempt is the outcome of a successful authentication. Failures lists the
// realms that rejected the token even though the strategy succeeded overall.
type Attempt struct {
	Info     domainauth.AuthenticationInfo
	Failures []apperrors.RealmFailure
}

// NewRealmAuthenticator constructs a RealmAuthenticator.
func NewRealmAuthenticator(opts RealmAuthenticatorOptions) (*RealmAuthenticator, error) {
	if err := validateRealms(opts.Realms); err != nil {
		return nil, err
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = config.StrategyAtLeastOneSuccessful
	}
	switch strategy {
	case config.StrategyFirstSuccessful, config.StrategyAtLeastOneSuccessful, config.StrategyAllSuccessful:
	default:
		return nil, fmt.Errorf("unknown authentication strategy %q", strategy)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "realm_authenticator")
	logger.Debug("RealmAuthenticator initialized", "strategy", strategy, "realms", realmNames(opts.Realms))

	return &RealmAuthenticator{
		realms:   append([]ports.Realm(nil), opts.Realms...),
		strategy: strategy,
		merge:    opts.MergePolicy,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// NewSingleRealmAuthenticator wires exactly one realm. With a single realm
// every strategy behaves the same.
func NewSingleRealmAuthenticator(realm ports.Realm, logger *slog.Logger) (*RealmAuthenticator, error) {
	return NewRealmAuthenticator(RealmAuthenticatorOptions{
		Realms:   []ports.Realm{realm},
		Strategy: config.StrategyFirstSuccessful,
		Logger:   logger,
	})
}

// Realms returns the configured realms in consultation order.
func (a *RealmAuthenticator) Realms() []ports.Realm {
	return append([]ports.Realm(nil), a.realms...)
}

// Strategy returns the configured strategy.
func (a *RealmAuthenticator) Strategy() config.AuthStrategy { return a.strategy }

// Authenticate returns the merged identity established by the token.
func (a *RealmAuthenticator) Authenticate(
	ctx context.Context,
	token domainauth.Token,
) (domainauth.AuthenticationInfo, error) {
	attempt, err := a.Attempt(ctx, token)
	if err != nil {
		return domainauth.AuthenticationInfo{}, err
	}
	return attempt.Info, nil
}

// Attempt is Authenticate plus the per-realm failures of a successful attempt.
func (a *RealmAuthenticator) Attempt(ctx context.Context, token domainauth.Token) (Attempt, error) {
	if token == nil {
		return Attempt{}, apperrors.Validation("authentication token is required")
	}
	if err := ctx.Err(); err != nil {
		return Attempt{}, contextError(err)
	}

	supporting := make([]ports.Realm, 0, len(a.realms))
	for _, r := range a.realms {
		if a.supports(ctx, r, token) {
			supporting = append(supporting, r)
		}
	}
	if len(supporting) == 0 {
		err := apperrors.UnsupportedToken(string(token.Type()))
		a.emit(0, time.Duration(0), err)
		return Attempt{}, err
	}

	start := time.Now()
	var (
		attempt Attempt
		err     error
	)
	switch a.strategy {
	case config.StrategyFirstSuccessful:
		attempt, err = a.firstSuccessful(ctx, token, supporting)
	case config.StrategyAllSuccessful:
		attempt, err = a.allSuccessful(ctx, token, supporting)
	default:
		attempt, err = a.atLeastOneSuccessful(ctx, token, supporting)
	}
	a.emit(len(supporting), time.Since(start), err)

	if err != nil {
		a.logger.DebugContext(ctx, "authentication failed",
			"strategy", a.strategy,
			"token_type", token.Type(),
			"host", token.Host(),
			"error", err,
		)
		return Attempt{}, err
	}
	return attempt, nil
}

// realmOutcome is one realm's answer. Each concurrent call writes only its own slot.
type realmOutcome struct {
	info domainauth.AuthenticationInfo
	err  error
}

// firstSuccessful consults realms one at a time and stops at the first success.
func (a *RealmAuthenticator) firstSuccessful(
	ctx context.Context,
	token domainauth.Token,
	realms []ports.Realm,
) (Attempt, error) {
	var failures []apperrors.RealmFailure
	for _, r := range realms {
		done := make(chan realmOutcome, 1)
		go func() { done <- a.consult(ctx, r, token) }()

		var out realmOutcome
		select {
		case out = <-done:
		case <-ctx.Done():
			return Attempt{}, contextError(ctx.Err())
		}

		if out.err == nil {
			return Attempt{Info: out.info, Failures: failures}, nil
		}
		failures = append(failures, apperrors.RealmFailure{Realm: r.Name(), Err: out.err})
	}
	return Attempt{}, apperrors.AuthenticationFailed(failures)
}

// atLeastOneSuccessful consults every realm concurrently and merges the
// successes in realm order.
func (a *RealmAuthenticator) atLeastOneSuccessful(
	ctx context.Context,
	token domainauth.Token,
	realms []ports.Realm,
) (Attempt, error) {
	results := make([]realmOutcome, len(realms))
	var g errgroup.Group
	for i, r := range realms {
		g.Go(func() error {
			results[i] = a.consult(ctx, r, token)
			return nil
		})
	}
	if err := wait(ctx, &g); err != nil {
		return Attempt{}, err
	}

	var (
		merged    domainauth.AuthenticationInfo
		succeeded bool
		failures  []apperrors.RealmFailure
	)
	for i, out := range results {
		if out.err != nil {
			failures = append(failures, apperrors.RealmFailure{Realm: realms[i].Name(), Err: out.err})
			continue
		}
		merged = merged.Merge(out.info, a.merge)
		succeeded = true
	}
	if !succeeded {
		return Attempt{}, apperrors.AuthenticationFailed(failures)
	}
	return Attempt{Info: merged, Failures: failures}, nil
}

var errRealmRejected = errors.New("realm rejected token")

type indexedOutcome struct {
	index int
	realmOutcome
}

// allSuccessful consults every realm concurrently and fails on the first
// rejection. Realms still running at that point are canceled and recorded as
// aborted; their late answers are discarded.
func (a *RealmAuthenticator) allSuccessful(
	ctx context.Context,
	token domainauth.Token,
	realms []ports.Realm,
) (Attempt, error) {
	rctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	outcomes := make(chan indexedOutcome, len(realms))
	for i, r := range realms {
		go func() {
			outcomes <- indexedOutcome{index: i, realmOutcome: a.consult(rctx, r, token)}
		}()
	}

	results := make([]realmOutcome, len(realms))
	reported := make([]bool, len(realms))
	for range realms {
		select {
		case out := <-outcomes:
			results[out.index] = out.realmOutcome
			reported[out.index] = true
			if out.err != nil {
				cancel(errRealmRejected)
				return Attempt{}, apperrors.AuthenticationFailed(abortedFailures(realms, results, reported))
			}
		case <-ctx.Done():
			return Attempt{}, contextError(ctx.Err())
		}
	}

	var merged domainauth.AuthenticationInfo
	for _, out := range results {
		merged = merged.Merge(out.info, a.merge)
	}
	return Attempt{Info: merged}, nil
}

// abortedFailures lists, in realm order, every reported rejection plus every
// realm that had not answered yet.
func abortedFailures(realms []ports.Realm, results []realmOutcome, reported []bool) []apperrors.RealmFailure {
	var failures []apperrors.RealmFailure
	for i, r := range realms {
		switch {
		case !reported[i]:
			failures = append(failures, apperrors.RealmFailure{
				Realm: r.Name(),
				Err:   apperrors.Wrap(context.Canceled, apperrors.ErrCodeCanceled, "aborted after another realm failed"),
			})
		case results[i].err != nil:
			failures = append(failures, apperrors.RealmFailure{Realm: r.Name(), Err: results[i].err})
		}
	}
	return failures
}

// wait blocks until the group finishes or ctx is done. On cancellation the
// group keeps running in the background and its results are discarded.
func wait(ctx context.Context, g *errgroup.Group) error {
	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return contextError(err)
	}
	return nil
}

// supports asks realm whether it handles token. A panicking Supports counts
// as not supporting the token.
func (a *RealmAuthenticator) supports(ctx context.Context, realm ports.Realm, token domainauth.Token) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			name := realm.Name()
			a.logger.ErrorContext(ctx, "realm panicked in Supports", "realm", name, "panic", r)
			metrics.EmitRealmFailure(a.metrics, name, apperrors.Internalf("realm %s panicked", name))
			ok = false
		}
	}()
	return realm.Supports(token)
}

// consult calls one realm, converting panics and unexpected faults into internal errors.
func (a *RealmAuthenticator) consult(
	ctx context.Context,
	realm ports.Realm,
	token domainauth.Token,
) (out realmOutcome) {
	name := realm.Name()
	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "realm panicked during authentication", "realm", name, "panic", r)
			out = realmOutcome{err: apperrors.Internalf("realm %s panicked", name)}
			metrics.EmitRealmFailure(a.metrics, name, out.err)
		}
	}()

	info, err := realm.Authenticate(ctx, token)
	switch {
	case err == nil && info.Principals.IsEmpty():
		err = apperrors.Internalf("realm %s returned no principals", name)
		a.logger.ErrorContext(ctx, "realm returned an empty identity", "realm", name)
	case err == nil:
		return realmOutcome{info: info}
	case isContextCancellation(err):
		err = contextError(err)
	case !apperrors.IsAuthenticationError(err):
		a.logger.ErrorContext(ctx, "realm fault during authentication", "realm", name, "error", err)
		err = apperrors.Wrapf(err, apperrors.ErrCodeInternal, "realm %s fault", name)
	}
	metrics.EmitRealmFailure(a.metrics, name, err)
	return realmOutcome{err: err}
}

func (a *RealmAuthenticator) emit(realms int, elapsed time.Duration, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.EmitAuthentication(a.metrics, metrics.AuthMetric{
		Strategy: string(a.strategy),
		Realms:   realms,
		Result:   result,
		Duration: elapsed,
		Err:      err,
	})
}

func validateRealms(realms []ports.Realm) error {
	if len(realms) == 0 {
		return errors.New("at least one realm is required")
	}
	seen := make(map[string]struct{}, len(realms))
	for i, r := range realms {
		if r == nil {
			return fmt.Errorf("realm %d is nil", i)
		}
		name := r.Name()
		if name == "" {
			return fmt.Errorf("realm %d has an empty name", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate realm name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func realmNames(realms []ports.Realm) []string {
	out := make([]string, 0, len(realms))
	for _, r := range realms {
		if r != nil {
			out = append(out, r.Name())
		}
	}
	return out
}

// contextError maps a context error onto the kernel's canceled and timeout codes.
func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "operation deadline exceeded")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "operation canceled")
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
