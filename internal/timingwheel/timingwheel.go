// Package timingwheel schedules the delayed callbacks the dispatcher and
// session engine need for per-session update() ticks (spec.md §4.E), without
// spinning up one time.Timer per session. The design mirrors the teacher's
// vendored kcp-go/v5 TimedSched (timedsched.go): a container/heap ordered by
// deadline, drained by a single goroutine parked on one time.Timer, with a
// small front-desk queue so callers never block on the scheduler's internal
// lock.
package timingwheel

import (
	"container/heap"
	"sync"
	"time"
)

type timedTask struct {
	execute func()
	due     time.Time
}

type taskHeap []timedTask

func (h taskHeap) Len() int            { return len(h) }
func (h taskHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h taskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(timedTask)) }
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1].execute = nil
	*h = old[0 : n-1]
	return x
}

// Wheel is a single-goroutine delay queue implementing engine.TimingWheel.
type Wheel struct {
	pending     []timedTask
	pendingLock sync.Mutex
	notify      chan struct{}

	incoming chan timedTask

	closeOnce sync.Once
	die       chan struct{}
}

// New starts a Wheel's background goroutines. Callers must call Close when
// done to release them.
func New() *Wheel {
	w := &Wheel{
		notify:   make(chan struct{}, 1),
		incoming: make(chan timedTask),
		die:      make(chan struct{}),
	}
	go w.run()
	go w.frontDesk()
	return w
}

// Schedule arranges for task to run after delay elapses. It never blocks
// longer than it takes to append to an internal queue.
func (w *Wheel) Schedule(task func(), delay time.Duration) {
	w.pendingLock.Lock()
	w.pending = append(w.pending, timedTask{execute: task, due: time.Now().Add(delay)})
	w.pendingLock.Unlock()

	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Close stops the wheel. Tasks already queued but not yet due are dropped.
func (w *Wheel) Close() {
	w.closeOnce.Do(func() { close(w.die) })
}

func (w *Wheel) frontDesk() {
	var batch []timedTask
	for {
		select {
		case <-w.notify:
			w.pendingLock.Lock()
			batch = append(batch[:0], w.pending...)
			w.pending = w.pending[:0]
			w.pendingLock.Unlock()

			for _, t := range batch {
				select {
				case w.incoming <- t:
				case <-w.die:
					return
				}
			}
		case <-w.die:
			return
		}
	}
}

func (w *Wheel) run() {
	var tasks taskHeap
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	drained := false

	for {
		select {
		case t := <-w.incoming:
			now := time.Now()
			if !now.Before(t.due) {
				t.execute()
				continue
			}
			heap.Push(&tasks, t)
			if !timer.Stop() && !drained {
				<-timer.C
			}
			timer.Reset(tasks[0].due.Sub(now))
			drained = false

		case now := <-timer.C:
			drained = true
			for tasks.Len() > 0 {
				if !now.Before(tasks[0].due) {
					heap.Pop(&tasks).(timedTask).execute()
				} else {
					timer.Reset(tasks[0].due.Sub(now))
					drained = false
					break
				}
			}

		case <-w.die:
			return
		}
	}
}
