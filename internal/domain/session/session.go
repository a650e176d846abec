// Package session holds the session record and its state machine. Sessions are
// owned by the session manager; callers only ever see Snapshot copies.
package session

import (
	"maps"
	"slices"
	"time"

	domainauth "github.com/target/gatekeeper/internal/domain/auth"
)

// State is the lifecycle state of a session. Stopped and Expired are terminal.
type State int

const (
	StateActive State = iota
	StateStopped
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further use is possible.
func (s State) Terminal() bool { return s != StateActive }

// Session is the mutable server-side record. It is not safe for concurrent use;
// the owner serializes access per session.
type Session struct {
	ID            string
	Host          string
	StartedAt     time.Time
	LastAccessAt  time.Time
	EndedAt       time.Time // when the session became terminal
	Timeout       time.Duration
	State         State
	Authenticated bool
	Principals    domainauth.PrincipalCollection

	attributes map[string]any
}

// New returns an Active session with start and last-access set to now. A
// non-positive timeout means the session never expires from idleness.
func New(id, host string, now time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:           id,
		Host:         host,
		StartedAt:    now,
		LastAccessAt: now,
		Timeout:      timeout,
		State:        StateActive,
		attributes:   make(map[string]any),
	}
}

// IdleExpired reports whether an Active session has been idle longer than its timeout at now.
func (s *Session) IdleExpired(now time.Time) bool {
	if s.State != StateActive || s.Timeout <= 0 {
		return false
	}
	return now.Sub(s.LastAccessAt) > s.Timeout
}

// Touch extends the session. Callers must have validated it is Active.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastAccessAt) {
		s.LastAccessAt = now
	}
}

// Stop moves an Active session to Stopped. It reports false if already terminal.
func (s *Session) Stop(now time.Time) bool {
	return s.end(StateStopped, now)
}

// Expire moves an Active session to Expired. It reports false if already terminal.
func (s *Session) Expire(now time.Time) bool {
	return s.end(StateExpired, now)
}

// end releases attributes and bound principals; only the tombstone fields remain.
func (s *Session) end(state State, now time.Time) bool {
	if s.State.Terminal() {
		return false
	}
	s.State = state
	s.EndedAt = now
	s.attributes = nil
	s.Principals = domainauth.PrincipalCollection{}
	return true
}

// Bind attaches principals and marks the session authenticated.
func (s *Session) Bind(principals domainauth.PrincipalCollection) {
	s.Principals = principals
	s.Authenticated = !principals.IsEmpty()
}

// Attribute returns the value stored under key.
func (s *Session) Attribute(key string) (any, bool) {
	v, ok := s.attributes[key]
	return v, ok
}

// SetAttribute stores value under key.
func (s *Session) SetAttribute(key string, value any) {
	if s.attributes == nil {
		s.attributes = make(map[string]any)
	}
	s.attributes[key] = value
}

// RemoveAttribute deletes key and returns the previous value.
func (s *Session) RemoveAttribute(key string) (any, bool) {
	v, ok := s.attributes[key]
	delete(s.attributes, key)
	return v, ok
}

// AttributeKeys returns the attribute keys sorted.
func (s *Session) AttributeKeys() []string {
	return slices.Sorted(maps.Keys(s.attributes))
}

// Snapshot is a read-only copy of a session for diagnostics.
type Snapshot struct {
	ID            string                         `json:"id"`
	Host          string                         `json:"host,omitempty"`
	StartedAt     time.Time                      `json:"started_at"`
	LastAccessAt  time.Time                      `json:"last_access_at"`
	EndedAt       time.Time                      `json:"ended_at,omitzero"`
	Timeout       time.Duration                  `json:"timeout"`
	State         State                          `json:"state"`
	Authenticated bool                           `json:"authenticated"`
	Principals    domainauth.PrincipalCollection `json:"-"`
	AttributeKeys []string                       `json:"attribute_keys,omitempty"`
}

// Snapshot copies the session. Attribute values are not included.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		ID:            s.ID,
		Host:          s.Host,
		StartedAt:     s.StartedAt,
		LastAccessAt:  s.LastAccessAt,
		EndedAt:       s.EndedAt,
		Timeout:       s.Timeout,
		State:         s.State,
		Authenticated: s.Authenticated,
		Principals:    s.Principals,
		AttributeKeys: s.AttributeKeys(),
	}
}
