package service

import (
	"context"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/clock"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/session"
	apperrors "github.com/target/gatekeeper/internal/errors"
	"github.com/target/gatekeeper/internal/observability/metrics"
	"github.com/target/gatekeeper/internal/observability/statsd"
)

const maxSessionIDAttempts = 5

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Config      config.SessionConfig // Required: timeout and retention
	Clock       clock.Clock          // Optional: defaults to the wall clock
	Logger      *slog.Logger         // Optional: structured logger
	Metrics     statsd.Sink          // Optional: metrics sink (StatsD-compatible)
	IDGenerator func() string        // Optional: defaults to uuid.NewString
}

type sessionEntry struct {
	mu   sync.Mutex
	sess *session.Session
}

// SessionManager owns the session registry. Callers hold only the session id.
//
// Lock order is registry then entry; the registry lock is held only for
// lookup, insert and purge, never while an entry lock is held.
type SessionManager struct {
	cfg     config.SessionConfig
	clock   clock.Clock
	logger  *slog.Logger
	metrics statsd.Sink
	newID   func() string

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Expired int
	Purged  int
	Active  int
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) *SessionManager {
	cfg := opts.Config
	cfg.Sanitize()

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := opts.IDGenerator
	if newID == nil {
		newID = uuid.NewString
	}

	return &SessionManager{
		cfg:      cfg,
		clock:    clock.OrReal(opts.Clock),
		logger:   logger.With("component", "session_manager"),
		metrics:  opts.Metrics,
		newID:    newID,
		sessions: make(map[string]*sessionEntry),
	}
}

// Start creates an Active, unauthenticated session and returns its id.
func (m *SessionManager) Start(ctx context.Context, host string) (string, error) {
	now := m.clock.Now()
	for range maxSessionIDAttempts {
		id := m.newID()
		if id == "" {
			continue
		}
		m.mu.Lock()
		if _, taken := m.sessions[id]; taken {
			m.mu.Unlock()
			continue
		}
		m.sessions[id] = &sessionEntry{sess: session.New(id, host, now, m.cfg.Timeout)}
		m.mu.Unlock()

		metrics.EmitSessionTransition(m.metrics, metrics.SessionStarted, "")
		m.logger.DebugContext(ctx, "session started", "session_id", id, "host", host)
		return id, nil
	}
	return "", apperrors.Internal("could not allocate a unique session id")
}

func (m *SessionManager) lookup(id string) (*sessionEntry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrCodeUnknownSession, "unknown session %q", id)
	}
	return e, nil
}

// withActive runs fn under the entry lock once the session is known to be
// Active. touch extends the session before fn runs.
func (m *SessionManager) withActive(
	ctx context.Context,
	id string,
	touch bool,
	fn func(s *session.Session) error,
) error {
	e, err := m.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := m.clock.Now()
	if err := m.validate(ctx, e.sess, now); err != nil {
		return err
	}
	if touch {
		e.sess.Touch(now)
	}
	if fn == nil {
		return nil
	}
	return fn(e.sess)
}

// validate reports the terminal state of s, expiring it first if it has been
// idle past its timeout. Callers hold the entry lock.
func (m *SessionManager) validate(ctx context.Context, s *session.Session, now time.Time) error {
	if s.IdleExpired(now) && s.Expire(now) {
		metrics.EmitSessionTransition(m.metrics, metrics.SessionExpired, "access")
		m.logger.DebugContext(ctx, "session expired on access", "session_id", s.ID, "idle", now.Sub(s.LastAccessAt))
	}
	switch s.State {
	case session.StateStopped:
		return apperrors.Newf(apperrors.ErrCodeStoppedSession, "session %q was stopped", s.ID)
	case session.StateExpired:
		return apperrors.Newf(apperrors.ErrCodeExpiredSession, "session %q has expired", s.ID)
	}
	return nil
}

// Touch extends the session's last-access time.
func (m *SessionManager) Touch(ctx context.Context, id string) error {
	return m.withActive(ctx, id, true, nil)
}

// IsValid reports whether the session exists and is Active.
func (m *SessionManager) IsValid(ctx context.Context, id string) bool {
	return m.withActive(ctx, id, false, nil) == nil
}

// Attribute returns the value stored under key. Reading counts as a use of
// the session and extends it.
func (m *SessionManager) Attribute(ctx context.Context, id, key string) (any, bool, error) {
	var (
		value any
		found bool
	)
	err := m.withActive(ctx, id, true, func(s *session.Session) error {
		value, found = s.Attribute(key)
		return nil
	})
	return value, found, err
}

// SetAttribute stores value under key. Nil values and empty keys are rejected;
// use RemoveAttribute to delete.
func (m *SessionManager) SetAttribute(ctx context.Context, id, key string, value any) error {
	if key == "" {
		return apperrors.ValidationField("key", "attribute key is required")
	}
	if isNilValue(value) {
		return apperrors.ValidationField("value", "attribute value must not be nil")
	}
	return m.withActive(ctx, id, true, func(s *session.Session) error {
		s.SetAttribute(key, value)
		return nil
	})
}

// RemoveAttribute deletes key and returns the previous value.
func (m *SessionManager) RemoveAttribute(ctx context.Context, id, key string) (any, bool, error) {
	var (
		value any
		found bool
	)
	err := m.withActive(ctx, id, true, func(s *session.Session) error {
		value, found = s.RemoveAttribute(key)
		return nil
	})
	return value, found, err
}

// AttributeKeys returns the attribute keys, sorted.
func (m *SessionManager) AttributeKeys(ctx context.Context, id string) ([]string, error) {
	var keys []string
	err := m.withActive(ctx, id, true, func(s *session.Session) error {
		keys = s.AttributeKeys()
		return nil
	})
	return keys, err
}

// Bind attaches principals and marks the session authenticated.
func (m *SessionManager) Bind(ctx context.Context, id string, principals domainauth.PrincipalCollection) error {
	if principals.IsEmpty() {
		return apperrors.ValidationField("principals", "at least one principal is required")
	}
	return m.withActive(ctx, id, true, func(s *session.Session) error {
		s.Bind(principals)
		return nil
	})
}

// Stop ends the session. Stopping a terminal session fails with its terminal state.
func (m *SessionManager) Stop(ctx context.Context, id string) error {
	_, err := m.stopReturningPrincipals(ctx, id)
	return err
}

// stopReturningPrincipals ends the session and returns the principals bound
// to it at the moment it stopped.
func (m *SessionManager) stopReturningPrincipals(
	ctx context.Context,
	id string,
) (domainauth.PrincipalCollection, error) {
	var principals domainauth.PrincipalCollection
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		principals = s.Principals
		s.Stop(m.clock.Now())
		return nil
	})
	if err != nil {
		return domainauth.PrincipalCollection{}, err
	}
	metrics.EmitSessionTransition(m.metrics, metrics.SessionStopped, "")
	m.logger.DebugContext(ctx, "session stopped", "session_id", id)
	return principals, nil
}

// StopTimestamp returns when the session was stopped or expired, or the zero
// time while it is still Active. It answers for tombstones and does not touch.
func (m *SessionManager) StopTimestamp(ctx context.Context, id string) (time.Time, error) {
	e, err := m.lookup(id)
	if err != nil {
		return time.Time{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = m.validate(ctx, e.sess, m.clock.Now())
	return e.sess.EndedAt, nil
}

// StartTimestamp returns when the session started.
func (m *SessionManager) StartTimestamp(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		t = s.StartedAt
		return nil
	})
	return t, err
}

// LastAccessTime returns the last time the session was touched.
func (m *SessionManager) LastAccessTime(ctx context.Context, id string) (time.Time, error) {
	var t time.Time
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		t = s.LastAccessAt
		return nil
	})
	return t, err
}

// Host returns the originating host recorded at start.
func (m *SessionManager) Host(ctx context.Context, id string) (string, error) {
	var host string
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		host = s.Host
		return nil
	})
	return host, err
}

// IsAuthenticated reports whether principals are bound to the session.
func (m *SessionManager) IsAuthenticated(ctx context.Context, id string) (bool, error) {
	var authenticated bool
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		authenticated = s.Authenticated
		return nil
	})
	return authenticated, err
}

// Principals returns the principals bound to the session.
func (m *SessionManager) Principals(ctx context.Context, id string) (domainauth.PrincipalCollection, error) {
	var principals domainauth.PrincipalCollection
	err := m.withActive(ctx, id, false, func(s *session.Session) error {
		principals = s.Principals
		return nil
	})
	return principals, err
}

// access validates and touches the session, returning its bound principals.
func (m *SessionManager) access(ctx context.Context, id string) (domainauth.PrincipalCollection, bool, error) {
	var (
		principals    domainauth.PrincipalCollection
		authenticated bool
	)
	err := m.withActive(ctx, id, true, func(s *session.Session) error {
		principals, authenticated = s.Principals, s.Authenticated
		return nil
	})
	return principals, authenticated, err
}

// Describe returns a diagnostic copy of the session, including terminal
// tombstones. Only an unknown id fails.
func (m *SessionManager) Describe(ctx context.Context, id string) (session.Snapshot, error) {
	e, err := m.lookup(id)
	if err != nil {
		return session.Snapshot{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = m.validate(ctx, e.sess, m.clock.Now())
	return e.sess.Snapshot(), nil
}

// ActiveCount returns the number of Active sessions that are not idle past their timeout.
func (m *SessionManager) ActiveCount(_ context.Context) int {
	now := m.clock.Now()
	count := 0
	for _, e := range m.entries() {
		e.mu.Lock()
		if e.sess.State == session.StateActive && !e.sess.IdleExpired(now) {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

func (m *SessionManager) entries() map[string]*sessionEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*sessionEntry, len(m.sessions))
	for id, e := range m.sessions {
		out[id] = e
	}
	return out
}

// Sweep expires idle sessions and purges tombstones older than the terminal
// retention. Each entry is judged under its own lock with a fresh clock read,
// so a touch that wins the lock keeps the session alive.
func (m *SessionManager) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var (
		res   SweepResult
		purge []string
	)
	for id, e := range m.entries() {
		if err := ctx.Err(); err != nil {
			return res, contextError(err)
		}
		e.mu.Lock()
		now := m.clock.Now()
		if e.sess.IdleExpired(now) && e.sess.Expire(now) {
			res.Expired++
			m.logger.DebugContext(ctx, "session expired by sweep", "session_id", id)
		}
		switch {
		case e.sess.State == session.StateActive:
			res.Active++
		case now.Sub(e.sess.EndedAt) >= m.cfg.TerminalRetention:
			purge = append(purge, id)
		}
		e.mu.Unlock()
	}

	if len(purge) > 0 {
		m.mu.Lock()
		for _, id := range purge {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		res.Purged = len(purge)
	}

	metrics.EmitSweep(m.metrics, metrics.SweepMetric{
		Expired:  res.Expired,
		Purged:   res.Purged,
		Active:   res.Active,
		Duration: time.Since(start),
	})
	if res.Expired > 0 || res.Purged > 0 {
		m.logger.InfoContext(ctx, "session sweep completed",
			"expired", res.Expired,
			"purged", res.Purged,
			"active", res.Active,
		)
	}
	return res, nil
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
