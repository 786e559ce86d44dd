package refsession

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xtaci/kcpcore/internal/buffer"
	"github.com/xtaci/kcpcore/internal/convreg"
	"github.com/xtaci/kcpcore/internal/endpoint"
	"github.com/xtaci/kcpcore/internal/engine"
)

type fakeOutput struct {
	writes [][]byte
	to     []endpoint.Endpoint
}

func (f *fakeOutput) WriteTo(data []byte, to endpoint.Endpoint) (int, error) {
	f.writes = append(f.writes, append([]byte(nil), data...))
	f.to = append(f.to, to)
	return len(data), nil
}

type fakeListener struct {
	connected int
	received  [][]byte
	closed    int
}

func (f *fakeListener) OnConnected(s engine.Session)                  { f.connected++ }
func (f *fakeListener) HandleReceive(s engine.Session, data []byte)   { f.received = append(f.received, data) }
func (f *fakeListener) HandleException(s engine.Session, err error)   {}
func (f *fakeListener) HandleClose(s engine.Session)                  { f.closed++ }

type fakeExecutor struct{ stopped bool }

func (f *fakeExecutor) IsActive() bool            { return !f.stopped }
func (f *fakeExecutor) Submit(t engine.Task) error { t(); return nil }
func (f *fakeExecutor) Stop()                      { f.stopped = true }

func ep(port uint16) endpoint.Endpoint {
	return endpoint.Endpoint{Addr: netip.MustParseAddr("198.51.100.1"), Port: port}
}

func TestSessionReadDeliversAndReleases(t *testing.T) {
	reg := convreg.New()
	lst := &fakeListener{}
	exec := &fakeExecutor{}
	s := New(&fakeOutput{}, lst, exec, engine.Config{}, reg, endpoint.User{Response: ep(1)}, 42)

	pool := buffer.NewPool(64)
	b := pool.Get(5)
	copy(b.Bytes(), []byte("hello"))

	require.NoError(t, s.Read(b))
	require.Equal(t, []byte("hello"), lst.received[0])
	require.EqualValues(t, 0, b.RefCount())
}

func TestSessionCloseIsIdempotentAndRemovesFromRegistry(t *testing.T) {
	reg := convreg.New()
	lst := &fakeListener{}
	exec := &fakeExecutor{}
	s := New(&fakeOutput{}, lst, exec, engine.Config{}, reg, endpoint.User{Response: ep(1)}, 7)
	reg.Insert(s.(*Session), ep(1), 7)

	s.Close(false)
	s.Close(true)

	require.Equal(t, 1, lst.closed)
	require.Nil(t, reg.GetByConv(7))
	require.True(t, exec.stopped)
}

func TestSendHandshakeRspWritesToResponseEndpoint(t *testing.T) {
	out := &fakeOutput{}
	user := endpoint.User{Response: ep(2)}
	require.NoError(t, SendHandshakeRsp(out, user, 7, 123456789))
	require.Len(t, out.writes, 1)
	require.Equal(t, ep(2), out.to[0])
	require.Len(t, out.writes[0], 20)
}

func TestIntervalDefault(t *testing.T) {
	reg := convreg.New()
	s := New(&fakeOutput{}, &fakeListener{}, &fakeExecutor{}, engine.Config{}, reg, endpoint.User{}, 1)
	require.Equal(t, DefaultInterval, s.Interval())
	require.True(t, DefaultInterval >= time.Millisecond)
}
