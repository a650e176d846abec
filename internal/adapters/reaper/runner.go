// Package reaper runs the session reaper loop in the background for the
// lifetime of a process.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Loop is a blocking sweep loop such as service.SessionReaper.
type Loop interface {
	Run(ctx context.Context) error
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Loop   Loop         // Required
	Logger *slog.Logger // Optional
}

// Runner starts a Loop on its own goroutine and stops it on demand.
type Runner struct {
	loop   Loop
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

// ErrAlreadyStarted is returned by Start on a running Runner.
var ErrAlreadyStarted = errors.New("reaper runner already started")

// NewRunner creates a new runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Loop == nil {
		return nil, errors.New("reaper loop is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{loop: opts.Loop, logger: logger.With("component", "reaper_runner")}, nil
}

// Start launches the loop. The loop keeps running after ctx's caller returns
// and ends on Stop or when ctx is canceled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrAlreadyStarted
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	r.cancel, r.done = cancel, done

	go func() {
		err := r.loop.Run(loopCtx)
		if err != nil {
			r.logger.ErrorContext(loopCtx, "reaper loop exited", "error", err)
		}
		done <- err
	}()
	r.logger.InfoContext(ctx, "reaper runner started")
	return nil
}

// Stop cancels the loop and waits for it to return, or for ctx to end.
// Stopping a runner that never started is a no-op.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
