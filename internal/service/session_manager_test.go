package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/gatekeeper/config"
	"github.com/target/gatekeeper/internal/clock"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/session"
	apperrors "github.com/target/gatekeeper/internal/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestSessions(t *testing.T, timeout, retention time.Duration) (*SessionManager, *clock.Fixed, *recordingSink) {
	t.Helper()
	clk := clock.NewFixed(t0)
	sink := newRecordingSink()
	m := NewSessionManager(SessionManagerOptions{
		Config: config.SessionConfig{
			Timeout:           timeout,
			SweepInterval:     time.Minute,
			TerminalRetention: retention,
		},
		Clock:   clk,
		Metrics: sink,
	})
	return m, clk, sink
}

func TestSessionManager_TimeoutScenario(t *testing.T) {
	m, clk, _ := newTestSessions(t, 30*time.Second, time.Hour)
	ctx := context.Background()

	id, err := m.Start(ctx, "10.0.0.7")
	require.NoError(t, err)

	clk.Set(t0.Add(29 * time.Second))
	require.NoError(t, m.Touch(ctx, id))

	last, err := m.LastAccessTime(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(29*time.Second), last)

	clk.Set(t0.Add(60 * time.Second))
	_, _, err = m.Attribute(ctx, id, "k")
	require.Error(t, err)
	assert.True(t, apperrors.IsExpiredSession(err))

	err = m.Touch(ctx, id)
	assert.True(t, apperrors.IsExpiredSession(err), "an expired session never resurrects")
}

func TestSessionManager_IdleExactlyTimeoutIsStillValid(t *testing.T) {
	m, clk, _ := newTestSessions(t, 30*time.Second, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	clk.Set(t0.Add(30 * time.Second))
	assert.True(t, m.IsValid(ctx, id))
	clk.Add(time.Nanosecond)
	assert.False(t, m.IsValid(ctx, id))
}

func TestSessionManager_UnknownSession(t *testing.T) {
	m, _, _ := newTestSessions(t, time.Minute, time.Hour)
	err := m.Touch(context.Background(), "nope")
	assert.True(t, apperrors.IsUnknownSession(err))
	_, err = m.Describe(context.Background(), "nope")
	assert.True(t, apperrors.IsUnknownSession(err))
}

func TestSessionManager_DoubleStopFails(t *testing.T) {
	m, _, sink := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	require.NoError(t, m.Stop(ctx, id))
	err = m.Stop(ctx, id)
	require.Error(t, err)
	assert.True(t, apperrors.IsStoppedSession(err))

	_, err = m.Host(ctx, id)
	assert.True(t, apperrors.IsStoppedSession(err))
	assert.Equal(t, int64(1), sink.count("session.stopped"))
}

func TestSessionManager_AttributeRoundTrip(t *testing.T) {
	m, clk, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	clk.Add(10 * time.Second)
	require.NoError(t, m.SetAttribute(ctx, id, "cart", []string{"book"}))
	require.NoError(t, m.SetAttribute(ctx, id, "a", 1))

	v, ok, err := m.Attribute(ctx, id, "cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"book"}, v)

	keys, err := m.AttributeKeys(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "cart"}, keys)

	old, ok, err := m.RemoveAttribute(ctx, id, "cart")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"book"}, old)

	_, ok, err = m.Attribute(ctx, id, "cart")
	require.NoError(t, err)
	assert.False(t, ok)

	last, err := m.LastAccessTime(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Second), last, "mutations touch the session")
}

func TestSessionManager_SetAttributeRejectsNil(t *testing.T) {
	m, _, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	var nilMap map[string]int
	for _, v := range []any{nil, nilMap, (*int)(nil)} {
		err := m.SetAttribute(ctx, id, "k", v)
		assert.True(t, apperrors.IsValidation(err), "value %#v", v)
	}
	assert.True(t, apperrors.IsValidation(m.SetAttribute(ctx, id, "", "v")))

	// Validation happens before the session lookup.
	assert.True(t, apperrors.IsValidation(m.SetAttribute(ctx, "unknown", "k", nil)))
}

func TestSessionManager_QueriesDoNotTouch(t *testing.T) {
	m, clk, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "h1")
	require.NoError(t, err)

	clk.Add(30 * time.Second)
	host, err := m.Host(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "h1", host)

	started, err := m.StartTimestamp(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, t0, started)

	authenticated, err := m.IsAuthenticated(ctx, id)
	require.NoError(t, err)
	assert.False(t, authenticated)

	last, err := m.LastAccessTime(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, t0, last)
}

func TestSessionManager_BindAndPrincipals(t *testing.T) {
	m, _, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	assert.True(t, apperrors.IsValidation(m.Bind(ctx, id, domainauth.PrincipalCollection{})))

	require.NoError(t, m.Bind(ctx, id, domainauth.NewPrincipalCollection("static", "alice")))
	ok, err := m.IsAuthenticated(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := m.Principals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Primary())
}

func TestSessionManager_DescribeReportsTerminalState(t *testing.T) {
	m, clk, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "h")
	require.NoError(t, err)
	require.NoError(t, m.SetAttribute(ctx, id, "k", "v"))

	snap, err := m.Describe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateActive, snap.State)
	assert.Equal(t, []string{"k"}, snap.AttributeKeys)

	clk.Add(2 * time.Minute)
	snap, err = m.Describe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpired, snap.State)
	assert.Empty(t, snap.AttributeKeys, "terminal sessions release their attributes")
	assert.Equal(t, t0.Add(2*time.Minute), snap.EndedAt)
}

func TestSessionManager_StopTimestamp(t *testing.T) {
	m, clk, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()

	stopped, err := m.Start(ctx, "")
	require.NoError(t, err)
	ts, err := m.StopTimestamp(ctx, stopped)
	require.NoError(t, err)
	assert.True(t, ts.IsZero(), "active sessions have no stop time")

	clk.Add(10 * time.Second)
	require.NoError(t, m.Stop(ctx, stopped))
	ts, err = m.StopTimestamp(ctx, stopped)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(10*time.Second), ts)

	idle, err := m.Start(ctx, "")
	require.NoError(t, err)
	before, err := m.LastAccessTime(ctx, idle)
	require.NoError(t, err)
	_, err = m.StopTimestamp(ctx, idle)
	require.NoError(t, err)
	after, err := m.LastAccessTime(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, before, after, "StopTimestamp does not touch")

	clk.Add(2 * time.Minute)
	ts, err = m.StopTimestamp(ctx, idle)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(130*time.Second), ts, "idle sessions report when they expired")

	_, err = m.StopTimestamp(ctx, "nope")
	assert.True(t, apperrors.IsUnknownSession(err))
}

func TestSessionManager_StopReturnsPrincipalsBoundAtStop(t *testing.T) {
	m, _, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, m.Bind(ctx, id, domainauth.NewPrincipalCollection("static", "alice")))
	require.NoError(t, m.Bind(ctx, id, domainauth.NewPrincipalCollection("static", "bob")))

	principals, err := m.stopReturningPrincipals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "bob", principals.Primary())

	err = m.Bind(ctx, id, domainauth.NewPrincipalCollection("static", "carol"))
	assert.True(t, apperrors.IsStoppedSession(err), "no rebind lands after the stop")
	_, err = m.stopReturningPrincipals(ctx, id)
	assert.True(t, apperrors.IsStoppedSession(err))
}

func TestSessionManager_NonPositiveTimeoutNeverExpires(t *testing.T) {
	m, clk, _ := newTestSessions(t, -1, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	clk.Add(1000 * time.Hour)
	assert.True(t, m.IsValid(ctx, id))
}

func TestSessionManager_SweepExpiresAndPurges(t *testing.T) {
	m, clk, sink := newTestSessions(t, 30*time.Second, 5*time.Minute)
	ctx := context.Background()

	idle, err := m.Start(ctx, "")
	require.NoError(t, err)
	busy, err := m.Start(ctx, "")
	require.NoError(t, err)
	stopped, err := m.Start(ctx, "")
	require.NoError(t, err)
	require.NoError(t, m.Stop(ctx, stopped))

	clk.Add(20 * time.Second)
	require.NoError(t, m.Touch(ctx, busy))
	clk.Add(20 * time.Second)

	res, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Expired: 1, Active: 1}, res)
	assert.Equal(t, 1, m.ActiveCount(ctx))
	assert.True(t, apperrors.IsExpiredSession(m.Touch(ctx, idle)))
	assert.True(t, apperrors.IsStoppedSession(m.Touch(ctx, stopped)))

	clk.Add(5 * time.Minute)
	res, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 2, res.Purged, "busy has only just expired and keeps its tombstone")
	assert.True(t, apperrors.IsUnknownSession(m.Touch(ctx, idle)))
	assert.Equal(t, int64(2), sink.count("session.expired"))
}

func TestSessionManager_SweepHonorsCancellation(t *testing.T) {
	m, _, _ := newTestSessions(t, time.Minute, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := m.Start(ctx, "")
	require.NoError(t, err)
	cancel()

	_, err = m.Sweep(ctx)
	assert.True(t, apperrors.IsCanceled(err))
}

// A touch that holds the entry lock before the sweep evaluates it keeps the
// session alive: the sweep re-reads the clock and idleness under the lock.
func TestSessionManager_TouchWinsRaceWithSweep(t *testing.T) {
	m, clk, _ := newTestSessions(t, 30*time.Second, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	clk.Set(t0.Add(31 * time.Second))

	entry, err := m.lookup(id)
	require.NoError(t, err)
	entry.mu.Lock()

	swept := make(chan SweepResult)
	go func() {
		res, _ := m.Sweep(ctx)
		swept <- res
	}()

	// Simulates Touch's critical section: it already holds the lock and
	// extends the session before the sweep can look at it.
	entry.sess.Touch(clk.Now())
	entry.mu.Unlock()

	res := <-swept
	assert.Zero(t, res.Expired)
	assert.True(t, m.IsValid(ctx, id))
}

func TestSessionManager_SweepWinsRaceWithTouch(t *testing.T) {
	m, clk, _ := newTestSessions(t, 30*time.Second, time.Hour)
	ctx := context.Background()
	id, err := m.Start(ctx, "")
	require.NoError(t, err)

	clk.Set(t0.Add(31 * time.Second))
	res, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.True(t, apperrors.IsExpiredSession(m.Touch(ctx, id)))
}

func TestSessionManager_ConcurrentAccess(t *testing.T) {
	m, clk, _ := newTestSessions(t, time.Minute, time.Second)
	ctx := context.Background()

	ids := make([]string, 20)
	for i := range ids {
		id, err := m.Start(ctx, "")
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 50 {
				_ = m.SetAttribute(ctx, id, fmt.Sprintf("k%d", j), j)
				_, _, _ = m.Attribute(ctx, id, "k0")
				if i%5 == 0 && j == 25 {
					_ = m.Stop(ctx, id)
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			clk.Add(time.Millisecond)
			_, _ = m.Sweep(ctx)
		}
	}()
	wg.Wait()

	assert.Equal(t, 16, m.ActiveCount(ctx))
}

func TestSessionManager_IDCollisionRetries(t *testing.T) {
	ids := []string{"dup", "dup", "", "fresh"}
	var mu sync.Mutex
	m := NewSessionManager(SessionManagerOptions{
		Config: config.SessionConfig{Timeout: time.Minute},
		IDGenerator: func() string {
			mu.Lock()
			defer mu.Unlock()
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})
	ctx := context.Background()

	first, err := m.Start(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "dup", first)

	second, err := m.Start(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "fresh", second)
}

func TestSessionManager_DefaultIDsAreUnique(t *testing.T) {
	m := NewSessionManager(SessionManagerOptions{Config: config.SessionConfig{Timeout: time.Minute}})
	seen := make(map[string]struct{})
	for range 1000 {
		id, err := m.Start(context.Background(), "")
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
