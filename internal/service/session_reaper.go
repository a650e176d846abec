package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"time"
)

// SessionSweeper is the part of SessionManager the reaper drives.
type SessionSweeper interface {
	Sweep(ctx context.Context) (SweepResult, error)
}

// SessionReaperOptions groups dependencies for SessionReaper.
type SessionReaperOptions struct {
	Sessions SessionSweeper // Required: registry to sweep
	Interval time.Duration  // Required: time between sweeps
	Logger   *slog.Logger   // Optional: structured logger
}

// SessionReaper runs SessionManager.Sweep on an interval.
type SessionReaper struct {
	sessions SessionSweeper
	interval time.Duration
	logger   *slog.Logger
}

// NewSessionReaper constructs a SessionReaper.
func NewSessionReaper(opts SessionReaperOptions) (*SessionReaper, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionSweeper is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("sweep interval must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "session_reaper")
		logger.Debug("SessionReaper initialized", "interval", opts.Interval)
	}

	return &SessionReaper{
		sessions: opts.Sessions,
		interval: opts.Interval,
		logger:   logger,
	}, nil
}

// Run sweeps until ctx is cancelled. It returns nil on graceful shutdown
// (context.Canceled) and ctx.Err() otherwise.
func (r *SessionReaper) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting session reaper", "interval", r.interval)
	}

	// Spread instances that start together.
	r.waitWithJitter(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx, "initial sweep")

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.sweep(ctx, "sweep")
		}
	}
}

func (r *SessionReaper) sweep(ctx context.Context, label string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.sessions.Sweep(ctx); err != nil && r.logger != nil {
		if isContextCancellation(err) {
			r.logger.Debug(label+" cancelled by context", "error", err)
			return
		}
		r.logger.Error(label+" failed", "error", err)
	}
}

// waitWithJitter waits a random delay up to 10% of the interval.
func (r *SessionReaper) waitWithJitter(ctx context.Context) {
	maxJitter := int64(r.interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if r.logger != nil {
			r.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter
	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
