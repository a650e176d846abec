// Package notify defines the security events forwarded to operator channels
// such as Slack and PagerDuty.
package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// EventKind names what happened.
type EventKind string

// EventAttemptLimitReached fires when an account's consecutive failed logins
// reach the realm's MaxAttempts; later attempts report excessive_attempts.
const EventAttemptLimitReached EventKind = "attempt_limit_reached"

// SecurityEvent is the canonical payload for security notifications.
type SecurityEvent struct {
	Kind       EventKind
	Realm      string
	Principal  string
	Host       string
	Detail     string
	Severity   string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming security events.
type Sink interface {
	SendSecurityEvent(ctx context.Context, event SecurityEvent) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, event SecurityEvent) error

// SendSecurityEvent implements the Sink interface.
func (f SinkFunc) SendSecurityEvent(ctx context.Context, event SecurityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
