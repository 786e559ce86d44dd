package convreg

import (
	"net/netip"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcpcore/internal/endpoint"
)

type fakeSession struct{ conv int64 }

func (f *fakeSession) ConvID() int64 { return f.conv }

func ep(port uint16) endpoint.Endpoint {
	return endpoint.Endpoint{Addr: netip.MustParseAddr("198.51.100.1"), Port: port}
}

func TestInsertDualIndexConsistency(t *testing.T) {
	r := New()
	s := &fakeSession{conv: 99}
	r.Insert(s, ep(1), 99)

	require.Equal(t, Session(s), r.GetByConv(99))
	require.Equal(t, Session(s), r.GetByEndpoint(ep(1)))
	require.True(t, r.ContainsConv(99))
}

func TestRemoveInvalidatesBothIndexesAtomically(t *testing.T) {
	r := New()
	s := &fakeSession{conv: 5}
	r.Insert(s, ep(2), 5)
	r.Remove(s)

	require.Nil(t, r.GetByConv(5))
	require.Nil(t, r.GetByEndpoint(ep(2)))
	require.False(t, r.ContainsConv(5))
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := New()
	s := &fakeSession{conv: 5}
	r.Insert(s, ep(2), 5)
	r.Remove(s)
	require.NotPanics(t, func() { r.Remove(s) })
}

func TestAllocatorUniqueUnderConcurrentCollisionPressure(t *testing.T) {
	r := New()
	alloc := NewAllocator(r)

	// Pre-populate the registry so allocation has to actually avoid
	// existing ids, not just get lucky on the first random draw.
	for i := int64(1); i <= 50; i++ {
		r.Insert(&fakeSession{conv: i}, ep(uint16(i)), i)
	}

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := alloc.Allocate(nil)
			require.NoError(t, err)
			mu.Lock()
			require.False(t, seen[id], "duplicate conv id allocated: %d", id)
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, 64)
}

func TestAllocatorAvoidsWaiterConvIDs(t *testing.T) {
	r := New()
	alloc := NewAllocator(r)

	pending := map[int64]bool{}
	attempts := 0
	id, err := alloc.Allocate(func(candidate int64) bool {
		attempts++
		if attempts < 3 {
			pending[candidate] = true
			return true // force a retry a few times
		}
		return false
	})
	require.NoError(t, err)
	require.False(t, pending[id])
}

func TestGetByConvReturnsInsertedSession(t *testing.T) {
	r := New()
	require.Nil(t, r.GetByConv(123))
	s := &fakeSession{conv: 123}
	r.Insert(s, ep(9), 123)
	require.Equal(t, Session(s), r.GetByConv(123))
}

func TestCountReflectsInsertAndRemove(t *testing.T) {
	r := New()
	require.Equal(t, 0, r.Count())

	s := &fakeSession{conv: 1}
	r.Insert(s, ep(1), 1)
	require.Equal(t, 1, r.Count())

	r.Remove(s)
	require.Equal(t, 0, r.Count())
}

func TestSnapshotReturnsPointInTimeCopy(t *testing.T) {
	r := New()
	r.Insert(&fakeSession{conv: 1}, ep(1), 1)
	r.Insert(&fakeSession{conv: 2}, ep(2), 2)

	entries := r.Snapshot()
	require.Len(t, entries, 2)

	byConv := make(map[int64]endpoint.Endpoint, len(entries))
	for _, e := range entries {
		byConv[e.ConvID] = e.Origin
	}
	require.Equal(t, ep(1), byConv[1])
	require.Equal(t, ep(2), byConv[2])

	// Mutating the registry afterwards must not affect the snapshot already taken.
	r.Insert(&fakeSession{conv: 3}, ep(3), 3)
	require.Len(t, entries, 2)
}
