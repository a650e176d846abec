// Package securitynotifier fans security events out to every configured
// notification sink.
package securitynotifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/target/gatekeeper/internal/clock"
	"github.com/target/gatekeeper/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	Clock  clock.Clock // Optional: stamps events without OccurredAt
	// Timeout bounds one fan-out; zero means 30s.
	Timeout time.Duration
}

// Service dispatches security events to all registered sinks.
type Service struct {
	logger  *slog.Logger
	sinks   []SinkRegistration
	clock   clock.Clock
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewService constructs a notifier. Nil sinks are dropped.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		if entry.Name == "" {
			entry.Name = "sink"
		}
		sinks = append(sinks, entry)
	}

	return &Service{
		logger:  logger.With("component", "security_notifier"),
		sinks:   sinks,
		clock:   clock.OrReal(opts.Clock),
		timeout: timeout,
	}
}

// Notify delivers event to every sink and waits for all deliveries. Delivery
// errors are logged, never returned.
func (s *Service) Notify(ctx context.Context, event notify.SecurityEvent) {
	if len(s.sinks) == 0 {
		return
	}
	if event.Severity == "" {
		event.Severity = notify.SeverityWarning
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendSecurityEvent(ctx, event); err != nil {
				s.logger.ErrorContext(ctx, "security notification delivery error",
					"sink", entry.Name,
					"kind", event.Kind,
					"realm", event.Realm,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// NotifyAsync delivers event in the background, detached from ctx's
// cancellation. Close waits for pending deliveries.
func (s *Service) NotifyAsync(ctx context.Context, event notify.SecurityEvent) {
	if len(s.sinks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Notify(ctx, event)
	}()
}

// Close blocks until background deliveries finish.
func (s *Service) Close() {
	s.wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
