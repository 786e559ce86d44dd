// Package waiter implements the bounded, FIFO-evicted half-open connection
// table described in spec.md §3/§4.D: a pending CONNECT is held here until
// either the first SN=0 data datagram promotes it into a session, or it is
// evicted to make room for a newer one.
package waiter

import (
	"container/list"
	"sync"

	"github.com/xtaci/kcpcore/internal/endpoint"
)

// DefaultCap is the reference waiter-table size bound (spec.md §3).
const DefaultCap = 10

// Waiter is a pending half-open connection.
type Waiter struct {
	ConvID int64
	Origin endpoint.Endpoint

	elem *list.Element
}

// Table is a bounded FIFO with secondary indexes by conv id and by
// originating endpoint. All methods are safe for concurrent use; the
// dispatcher is expected to call Append/Remove from its single-threaded
// ingress path, but FindByConv/FindByEndpoint may be called from anywhere.
type Table struct {
	cap int

	mu       sync.Mutex
	fifo     *list.List
	byConv   map[int64]*Waiter
	byOrigin map[endpoint.Endpoint]*Waiter
}

// New creates a Table bounded to capacity cap. A cap <= 0 falls back to
// DefaultCap.
func New(cap int) *Table {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &Table{
		cap:      cap,
		fifo:     list.New(),
		byConv:   make(map[int64]*Waiter),
		byOrigin: make(map[endpoint.Endpoint]*Waiter),
	}
}

// FindByConv returns the waiter for convID, or nil.
func (t *Table) FindByConv(convID int64) *Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byConv[convID]
}

// FindByEndpoint returns the waiter for origin, or nil.
func (t *Table) FindByEndpoint(origin endpoint.Endpoint) *Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byOrigin[origin]
}

// Len reports the current number of waiters.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fifo.Len()
}

// Append inserts a new waiter for (convID, origin), evicting the oldest
// entry first if the table is already at capacity. Returns the inserted
// Waiter.
func (t *Table) Append(convID int64, origin endpoint.Endpoint) *Waiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	// The size bound is read and enforced under the same lock as the
	// insertion; there is no unlocked pre-check, and the FindByConv/
	// FindByEndpoint lookups take this lock as well.
	if t.fifo.Len() >= t.cap {
		t.evictOldestLocked()
	}

	w := &Waiter{ConvID: convID, Origin: origin}
	w.elem = t.fifo.PushBack(w)
	t.byConv[convID] = w
	t.byOrigin[origin] = w
	return w
}

// Remove removes w from the table. Idempotent: removing an already-removed
// or unknown waiter is a no-op.
func (t *Table) Remove(w *Waiter) {
	if w == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(w)
}

func (t *Table) removeLocked(w *Waiter) {
	if w.elem == nil {
		return
	}
	t.fifo.Remove(w.elem)
	w.elem = nil
	if cur, ok := t.byConv[w.ConvID]; ok && cur == w {
		delete(t.byConv, w.ConvID)
	}
	if cur, ok := t.byOrigin[w.Origin]; ok && cur == w {
		delete(t.byOrigin, w.Origin)
	}
}

func (t *Table) evictOldestLocked() {
	front := t.fifo.Front()
	if front == nil {
		return
	}
	t.removeLocked(front.Value.(*Waiter))
}
