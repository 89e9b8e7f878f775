// Package tasks supervises fire-and-forget background work.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrPoolClosed is returned by handles of tasks submitted after Shutdown began.
var ErrPoolClosed = errors.New("task pool closed")

// Handle tracks one submitted task.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the task label used in logs.
func (h *Handle) Name() string {
	return h.name
}

// Done is closed when the task returns.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the task finishes or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the task error once Done is closed.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Pool runs tasks on a bounded number of goroutines, detached from the
// request that submitted them. Failures and panics are logged here.
type Pool struct {
	logger *slog.Logger
	slots  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New builds a pool running at most limit tasks concurrently (minimum 1).
func New(logger *slog.Logger, limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		logger: logger,
		slots:  make(chan struct{}, limit),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go submits fn and returns immediately.
func (p *Pool) Go(name string, fn func(context.Context) error) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		h.err = ErrPoolClosed
		close(h.done)
		p.logWarn("task rejected", "task", name, "error", ErrPoolClosed.Error())
		return h
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer close(h.done)

		select {
		case p.slots <- struct{}{}:
		case <-p.ctx.Done():
			h.err = p.ctx.Err()
			p.logWarn("task cancelled before start", "task", name)
			return
		}
		defer func() { <-p.slots }()

		started := time.Now()
		h.err = run(p.ctx, fn)
		if h.err != nil {
			p.logError("task failed", "task", name, "duration_ms", time.Since(started).Milliseconds(), "error", h.err.Error())
			return
		}
		p.logInfo("task complete", "task", name, "duration_ms", time.Since(started).Milliseconds())
	}()

	return h
}

// Shutdown rejects new tasks and waits for running ones. When ctx ends first
// the remaining tasks are cancelled and ctx.Err is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-finished
		return ctx.Err()
	}
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

func (p *Pool) logInfo(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pool) logWarn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pool) logError(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Error(msg, args...)
	}
}
