package waiter

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcpcore/internal/endpoint"
)

func ep(t *testing.T, port uint16) endpoint.Endpoint {
	t.Helper()
	return endpoint.Endpoint{Addr: netip.MustParseAddr("198.51.100.1"), Port: port}
}

func TestAppendAndFind(t *testing.T) {
	tb := New(DefaultCap)
	w := tb.Append(42, ep(t, 1))
	require.Same(t, w, tb.FindByConv(42))
	require.Same(t, w, tb.FindByEndpoint(ep(t, 1)))
	require.Equal(t, 1, tb.Len())
}

func TestRemoveIsIdempotent(t *testing.T) {
	tb := New(DefaultCap)
	w := tb.Append(1, ep(t, 1))
	tb.Remove(w)
	require.Nil(t, tb.FindByConv(1))
	require.Equal(t, 0, tb.Len())
	require.NotPanics(t, func() { tb.Remove(w) })
}

func TestBoundEviction(t *testing.T) {
	tb := New(3)
	w1 := tb.Append(1, ep(t, 1))
	tb.Append(2, ep(t, 2))
	tb.Append(3, ep(t, 3))
	require.Equal(t, 3, tb.Len())

	// fourth insert evicts w1
	tb.Append(4, ep(t, 4))
	require.Equal(t, 3, tb.Len())
	require.Nil(t, tb.FindByConv(w1.ConvID))
	require.NotNil(t, tb.FindByConv(4))
}

func TestSizeNeverExceedsCapPlusOneTransiently(t *testing.T) {
	tb := New(10)
	for i := int64(0); i < 1000; i++ {
		tb.Append(i, ep(t, uint16(i%65535)))
		require.LessOrEqual(t, tb.Len(), 11)
	}
	require.LessOrEqual(t, tb.Len(), DefaultCap)
}

func TestSecondaryIndexesStayConsistentWithFIFO(t *testing.T) {
	tb := New(5)
	var waiters []*Waiter
	for i := int64(0); i < 20; i++ {
		waiters = append(waiters, tb.Append(i, ep(t, uint16(i))))
	}
	require.Equal(t, 5, tb.Len())
	for _, w := range waiters[:15] {
		require.Nil(t, tb.FindByConv(w.ConvID))
		require.Nil(t, tb.FindByEndpoint(w.Origin))
	}
	for _, w := range waiters[15:] {
		require.Same(t, w, tb.FindByConv(w.ConvID))
		require.Same(t, w, tb.FindByEndpoint(w.Origin))
	}
}
