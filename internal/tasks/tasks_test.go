package tasks

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolRunsTaskAndReportsError(t *testing.T) {
	var logs bytes.Buffer
	pool := New(slog.New(slog.NewJSONHandler(&logs, nil)), 2)

	ok := pool.Go("ok", func(context.Context) error { return nil })
	bad := pool.Go("bad", func(context.Context) error { return errors.New("boom") })

	require.NoError(t, ok.Wait(context.Background()))
	require.EqualError(t, bad.Wait(context.Background()), "boom")
	require.EqualError(t, bad.Err(), "boom")
	require.Contains(t, logs.String(), `"msg":"task failed"`)
	require.Contains(t, logs.String(), `"task":"bad"`)
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := New(nil, 1)
	h := pool.Go("panics", func(context.Context) error { panic("kaboom") })

	err := h.Wait(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "panic: kaboom")
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := New(nil, 1)
	var running atomic.Int32
	var peak atomic.Int32

	task := func(context.Context) error {
		n := running.Add(1)
		if n > peak.Load() {
			peak.Store(n)
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	handles := []*Handle{pool.Go("a", task), pool.Go("b", task), pool.Go("c", task)}
	for _, h := range handles {
		require.NoError(t, h.Wait(context.Background()))
	}
	require.Equal(t, int32(1), peak.Load())
}

func TestShutdownWaitsThenRejects(t *testing.T) {
	pool := New(nil, 1)
	var finished atomic.Bool
	pool.Go("slow", func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	})

	require.NoError(t, pool.Shutdown(context.Background()))
	require.True(t, finished.Load())

	late := pool.Go("late", func(context.Context) error { return nil })
	require.ErrorIs(t, late.Wait(context.Background()), ErrPoolClosed)
}

func TestShutdownTimeoutCancelsRunningTasks(t *testing.T) {
	pool := New(nil, 1)
	h := pool.Go("blocked", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, pool.Shutdown(ctx), context.DeadlineExceeded)
	require.ErrorIs(t, h.Err(), context.Canceled)
}

func TestHandleWaitHonorsContext(t *testing.T) {
	pool := New(nil, 1)
	release := make(chan struct{})
	h := pool.Go("wait", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.Wait(ctx), context.DeadlineExceeded)
	require.NoError(t, h.Err())

	close(release)
	require.NoError(t, h.Wait(context.Background()))
	require.Equal(t, "wait", h.Name())
}
