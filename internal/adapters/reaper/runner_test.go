package reaper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopFunc func(ctx context.Context) error

func (f loopFunc) Run(ctx context.Context) error { return f(ctx) }

func blockingLoop(started chan<- struct{}) Loop {
	return loopFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return nil
	})
}

func TestNewRunner_RequiresLoop(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	assert.Error(t, err)
}

func TestRunner_StartStop(t *testing.T) {
	started := make(chan struct{})
	r, err := NewRunner(RunnerOptions{Loop: blockingLoop(started)})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, r.Start(ctx))
	assert.ErrorIs(t, r.Start(ctx), ErrAlreadyStarted)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("loop did not start")
	}
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx), "second stop is a no-op")
}

func TestRunner_StopBeforeStart(t *testing.T) {
	r, err := NewRunner(RunnerOptions{Loop: loopFunc(func(context.Context) error { return nil })})
	require.NoError(t, err)
	assert.NoError(t, r.Stop(context.Background()))
}

func TestRunner_StopReportsLoopError(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRunner(RunnerOptions{Loop: loopFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return boom
	})})
	require.NoError(t, err)

	require.NoError(t, r.Start(context.Background()))
	assert.ErrorIs(t, r.Stop(context.Background()), boom)
}

func TestRunner_StopHonorsContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	r, err := NewRunner(RunnerOptions{Loop: loopFunc(func(context.Context) error {
		<-release
		return nil
	})})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Stop(ctx), context.DeadlineExceeded)
}
