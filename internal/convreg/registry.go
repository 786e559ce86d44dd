// Package convreg implements the conversation registry (spec.md §4.C): the
// authoritative {convId -> Session} and {originEndpoint -> Session} dual
// index, plus the unique conversation-id allocator that spec.md §4.E and §5
// require to be serialized against this registry's own check-then-act.
package convreg

import (
	"crypto/rand"
	"encoding/binary"
	"sync"

	"github.com/xtaci/kcpcore/internal/endpoint"
)

// Session is the minimal shape the registry needs from an opaque,
// externally-owned session handle: enough to key it by conversation id.
// The richer per-session API (read/close/etc, spec.md §6) lives in
// internal/engine and is never exercised by the registry itself.
type Session interface {
	ConvID() int64
}

// Registry is the dual-indexed conversation table.
type Registry struct {
	mu       sync.RWMutex
	byConv   map[int64]Session
	byOrigin map[endpoint.Endpoint]Session
	originOf map[int64]endpoint.Endpoint // reverse index for O(1) Remove
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		byConv:   make(map[int64]Session),
		byOrigin: make(map[endpoint.Endpoint]Session),
		originOf: make(map[int64]endpoint.Endpoint),
	}
}

// GetByEndpoint returns the session for an origin endpoint, or nil.
func (r *Registry) GetByEndpoint(origin endpoint.Endpoint) Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byOrigin[origin]
}

// GetByConv returns the session for a conversation id, or nil. Allocation
// checks collisions through ContainsConv; GetByConv serves lookups such as
// the admin tunnel's kick command and RegistryChannelManager.Get.
func (r *Registry) GetByConv(convID int64) Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byConv[convID]
}

// ContainsConv reports whether convID is already assigned to a session.
func (r *Registry) ContainsConv(convID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byConv[convID]
	return ok
}

// Insert atomically installs both indexes for session s.
func (r *Registry) Insert(s Session, origin endpoint.Endpoint, convID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConv[convID] = s
	r.byOrigin[origin] = s
	r.originOf[convID] = origin
}

// Remove atomically removes both indexes for session s. Idempotent, and
// safe to call with a session that was never inserted.
func (r *Registry) Remove(s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	convID := s.ConvID()
	if cur, ok := r.byConv[convID]; ok && cur == s {
		delete(r.byConv, convID)
	}
	if origin, ok := r.originOf[convID]; ok {
		if cur, ok := r.byOrigin[origin]; ok && cur == s {
			delete(r.byOrigin, origin)
		}
		delete(r.originOf, convID)
	}
}

// Count reports how many sessions are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConv)
}

// Snapshot returns every registered session's conversation id and origin
// endpoint, for diagnostics (e.g. the admin tunnel's live-conversation
// listing). The returned slice is a point-in-time copy; it does not alias
// the registry's internal maps.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.byConv))
	for convID, s := range r.byConv {
		entries = append(entries, Entry{ConvID: convID, Origin: r.originOf[convID], Session: s})
	}
	return entries
}

// Entry is one row of a Snapshot.
type Entry struct {
	ConvID  int64
	Origin  endpoint.Endpoint
	Session Session
}

// Allocator serializes conv-id allocation against both this registry and a
// waiter table (spec.md §4.E, §5). Its lock covers the "is this id free"
// check only; inserting the returned id into the registry or waiter table
// is done by the caller after Allocate has returned and released the lock.
type Allocator struct {
	mu       sync.Mutex
	registry *Registry
}

// NewAllocator binds an Allocator to a Registry. The same Allocator must be
// shared by every caller that allocates conv ids for that registry.
func NewAllocator(r *Registry) *Allocator {
	return &Allocator{registry: r}
}

// Allocate draws a uniformly random non-zero 64-bit id that collides with
// neither the registry nor waiterConvExists, under a lock scoped to this
// allocator so the check-then-act race against concurrent handshakes is
// closed (spec.md §4.E step "allocate a unique convId").
func (a *Allocator) Allocate(waiterConvExists func(int64) bool) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for {
		id, err := randomConvID()
		if err != nil {
			return 0, err
		}
		if a.registry.ContainsConv(id) {
			continue
		}
		if waiterConvExists != nil && waiterConvExists(id) {
			continue
		}
		return id, nil
	}
}

func randomConvID() (int64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		id := int64(binary.BigEndian.Uint64(buf[:]))
		if id != 0 {
			return id, nil
		}
		// 0 is reserved as "unassigned"; redraw on the (astronomically
		// unlikely) zero value.
	}
}
