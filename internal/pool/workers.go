// Package pool assigns recording identities to channels and tracks live sessions.
package pool

import (
	"errors"
	"sync"
)

// ErrPoolExhausted means no ready identity is free in the target group.
var ErrPoolExhausted = errors.New("no recording identity available")

// Worker is a snapshot of one identity.
type Worker struct {
	ID       string
	Ready    bool
	Occupied map[string]string // group -> channel
}

type worker struct {
	id       string
	ready    bool
	occupied map[string]string
}

// WorkerPool holds identities in fixed priority order.
type WorkerPool struct {
	mu      sync.Mutex
	workers []*worker
	index   map[string]*worker
}

// NewWorkerPool registers ids in priority order. Identities start not ready.
func NewWorkerPool(ids ...string) *WorkerPool {
	p := &WorkerPool{index: make(map[string]*worker, len(ids))}
	for _, id := range ids {
		if _, dup := p.index[id]; dup || id == "" {
			continue
		}
		w := &worker{id: id, occupied: make(map[string]string)}
		p.workers = append(p.workers, w)
		p.index[id] = w
	}
	return p
}

// SetReady flips an identity's readiness, e.g. on gateway connect/disconnect.
func (p *WorkerPool) SetReady(id string, ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.index[id]; ok {
		w.ready = ready
	}
}

// Ready counts identities that can take work.
func (p *WorkerPool) Ready() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, w := range p.workers {
		if w.ready {
			n++
		}
	}
	return n
}

// Assign returns the first ready identity not occupying a channel in group.
// It does not reserve the identity; use Acquire for that.
func (p *WorkerPool) Assign(group string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.firstFree(group)
	if w == nil {
		return "", ErrPoolExhausted
	}
	return w.id, nil
}

// Acquire assigns and marks the identity as occupying channel in one step.
func (p *WorkerPool) Acquire(group string, channel string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.firstFree(group)
	if w == nil {
		return "", ErrPoolExhausted
	}
	w.occupied[group] = channel
	return w.id, nil
}

// Release frees id's slot in group. Releasing a free slot is a no-op.
func (p *WorkerPool) Release(id string, group string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.index[id]; ok {
		delete(w.occupied, group)
	}
}

// Snapshot copies every identity's state in priority order.
func (p *WorkerPool) Snapshot() []Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Worker, 0, len(p.workers))
	for _, w := range p.workers {
		occupied := make(map[string]string, len(w.occupied))
		for group, channel := range w.occupied {
			occupied[group] = channel
		}
		out = append(out, Worker{ID: w.id, Ready: w.ready, Occupied: occupied})
	}
	return out
}

func (p *WorkerPool) firstFree(group string) *worker {
	for _, w := range p.workers {
		if !w.ready {
			continue
		}
		if _, busy := w.occupied[group]; busy {
			continue
		}
		return w
	}
	return nil
}
