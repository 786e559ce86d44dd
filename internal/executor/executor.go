// Package executor implements the single-consumer task runners the ingress
// dispatcher binds one-per-session for that session's lifetime (spec.md §5):
// every datagram the dispatcher hands to a given conversation is Read on
// the same goroutine, serialized in arrival order. Close may be called from
// other goroutines (the dispatcher's DISCONNECT path, the admin tunnel).
//
// The shape — a bounded task channel drained by one dedicated goroutine,
// with the whole pool's goroutines supervised together and stopped together
// by Pool.Shutdown — generalizes the teacher's server/main.go
// accept-loop pattern (one goroutine per listener, tracked by a
// sync.WaitGroup) from "one goroutine per listener" to "one goroutine per
// session", using golang.org/x/sync/errgroup in place of the bare
// WaitGroup so a goroutine's panic-free early return is observable by
// Pool.Shutdown.
package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xtaci/kcpcore/internal/engine"
)

// QueueDepth bounds how many pending tasks a single-consumer Executor will
// buffer before Submit blocks the caller. The dispatcher never wants to
// block on a congested session, so it always pairs Submit with IsActive and
// treats a full queue on a still-active executor as transient backpressure.
const QueueDepth = 256

// Single is one goroutine draining its own task channel. It implements
// engine.Executor.
type Single struct {
	tasks  chan engine.Task
	active atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

func newSingle(queueDepth int) *Single {
	s := &Single{
		tasks: make(chan engine.Task, queueDepth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

func (s *Single) run() {
	defer close(s.done)
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.stop:
			// Drain whatever was already queued before stop was observed,
			// so a Close submitted just ahead of Stop still executes.
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// IsActive implements engine.Executor.
func (s *Single) IsActive() bool { return s.active.Load() }

// Submit implements engine.Executor. It returns engine.ErrExecutorRejected
// once Stop has been called; callers otherwise block until the queue has
// room.
func (s *Single) Submit(task engine.Task) error {
	if !s.active.Load() {
		return engine.ErrExecutorRejected{}
	}
	select {
	case s.tasks <- task:
		return nil
	case <-s.stop:
		return engine.ErrExecutorRejected{}
	}
}

// Stop implements engine.Executor. Idempotent.
func (s *Single) Stop() {
	if s.active.CompareAndSwap(true, false) {
		close(s.stop)
	}
}

// Wait blocks until the executor's goroutine has exited after Stop.
func (s *Single) Wait() { <-s.done }

// Pool vends a fresh single-consumer executor per session, supervised by one
// errgroup so the whole generation of live executors can be waited on
// together during shutdown. Unlike a worker pool that reuses a fixed set of
// goroutines across many short-lived tasks (the shape github.com/panjf2000/
// ants offers, and the admin tunnel uses for exactly that reason), a session
// here owns its goroutine exclusively for the session's entire lifetime
// (spec.md §5) — Acquire always spawns, it never hands out a shared worker.
type Pool struct {
	mu         sync.Mutex
	workers    []*Single
	group      *errgroup.Group
	cancel     context.CancelFunc
	queueDepth int
}

// NewPool creates a Pool whose executors each buffer up to queueDepth
// pending tasks (QueueDepth if queueDepth <= 0, e.g. when the caller leaves
// Config.ExecutorQueueDepth at its zero value). The errgroup's goroutines
// are spawned lazily, one per Acquire call, rather than pre-sized: a
// session here owns its goroutine for its entire lifetime, so there is no
// fixed-size worker set to pre-allocate.
func NewPool(queueDepth int) *Pool {
	if queueDepth <= 0 {
		queueDepth = QueueDepth
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, _ := errgroup.WithContext(ctx)
	return &Pool{group: group, cancel: cancel, queueDepth: queueDepth}
}

// Acquire implements engine.ExecutorPool, spawning a new dedicated goroutine
// bound to the returned Executor for as long as the caller keeps it alive.
func (p *Pool) Acquire() engine.Executor {
	w := newSingle(p.queueDepth)

	p.mu.Lock()
	p.workers = append(p.workers, w)
	p.mu.Unlock()

	p.group.Go(func() error {
		w.run()
		return nil
	})
	return w
}

// Shutdown stops every executor spawned so far and waits for their
// goroutines to exit.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	workers := append([]*Single(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	p.cancel()
	return p.group.Wait()
}
