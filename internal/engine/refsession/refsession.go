// Package refsession is a minimal reference implementation of
// engine.Session. It performs no retransmission, windowing, or congestion
// control — the real KCP ARQ engine (spec.md §1) is explicitly out of
// scope for this repository — but it satisfies the engine.Session contract
// well enough to make internal/dispatch runnable end-to-end in tests and as
// the default wiring in cmd/kcpgated, forwarding payloads to the listener
// as-is and tracking the fields a production engine would: conv id, user,
// and update interval.
//
// The shape (an output sink, a listener, an executor, and an interval field
// checked before each tick) mirrors the teacher's vendored
// kcp-go/v5 UDPSession, minus everything ARQ-specific.
package refsession

import (
	"sync"
	"time"

	"github.com/xtaci/kcpcore/internal/buffer"
	"github.com/xtaci/kcpcore/internal/convreg"
	"github.com/xtaci/kcpcore/internal/endpoint"
	"github.com/xtaci/kcpcore/internal/engine"
)

// DefaultInterval is the reference update interval, matching the teacher's
// "fast" mode interval of 30ms.
const DefaultInterval = 30 * time.Millisecond

// Session is the reference engine.Session implementation.
type Session struct {
	mu       sync.Mutex
	convID   int64
	user     endpoint.User
	interval time.Duration
	output   engine.Output
	listener engine.Listener
	executor engine.Executor
	registry *convreg.Registry
	closed   bool
}

// New builds a Session matching engine.SessionFactory's signature.
func New(output engine.Output, listener engine.Listener, executor engine.Executor, config engine.Config, registry *convreg.Registry, user endpoint.User, convID int64) engine.Session {
	return &Session{
		convID:   convID,
		user:     user,
		interval: DefaultInterval,
		output:   output,
		listener: listener,
		executor: executor,
		registry: registry,
	}
}

// ConvID implements convreg.Session.
func (s *Session) ConvID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// SetConv implements engine.Session.
func (s *Session) SetConv(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convID = id
}

// User implements engine.Session.
func (s *Session) User() *endpoint.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.user
	return &u
}

// Interval implements engine.Session.
func (s *Session) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Executor implements engine.Session.
func (s *Session) Executor() engine.Executor {
	return s.executor
}

// Read implements engine.Session. It forwards the payload verbatim to the
// listener's HandleReceive and takes ownership of buf on success, releasing
// it once the listener has returned.
func (s *Session) Read(buf *buffer.Buffer) error {
	defer buf.Release()
	s.listener.HandleReceive(s, buf.Bytes())
	return nil
}

// SendHandshakeRsp builds and writes the handshake-response datagram for a
// CONNECT, addressed to user's response endpoint. This is the static
// collaborator method named in spec.md §6 ("static
// send_handshake_rsp(user, enet, convId)"); the dispatcher calls it
// directly rather than through a Session instance since no session exists
// yet at CONNECT time.
func SendHandshakeRsp(output engine.Output, user endpoint.User, enet int32, convID int64) error {
	buf := make([]byte, 20)
	// code: reuse the CONNECT code to mark this as a handshake response,
	// carrying the enet echo and the newly allocated conversation id in
	// place of the request's reserved fields.
	putBigEndianInt32(buf[0:4], 255)
	putBigEndianInt64(buf[4:12], convID)
	putBigEndianInt32(buf[12:16], enet)
	_, err := output.WriteTo(buf, user.Response)
	return err
}

func putBigEndianInt32(b []byte, v int32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func putBigEndianInt64(b []byte, v int64) {
	for i := 0; i < 8; i++ {
		b[7-i] = byte(v >> (8 * i))
	}
}

// Close implements engine.Session. force is accepted for interface
// compatibility; the reference session has no in-flight retransmit state
// to drain, so both modes behave identically: remove from the registry and
// notify the listener exactly once.
func (s *Session) Close(force bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.registry.Remove(s)
	s.executor.Stop()
	s.listener.HandleClose(s)
}
