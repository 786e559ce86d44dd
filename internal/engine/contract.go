// Package engine declares the interfaces the ingress dispatcher consumes
// from its external collaborators (spec.md §6): the KCP ARQ session engine
// itself, the executor pool that drives it, the timing wheel that schedules
// its update ticks, and the listener callbacks an embedder supplies. None of
// these are implemented here beyond the minimal reference Session in the
// refsession subpackage — the real KCP ARQ engine, FEC layer, and
// production executor/timing-wheel implementations are out of scope per
// spec.md §1 and are supplied by the embedder.
package engine

import (
	"time"

	"github.com/xtaci/kcpcore/internal/buffer"
	"github.com/xtaci/kcpcore/internal/convreg"
	"github.com/xtaci/kcpcore/internal/endpoint"
)

// HeaderVariant selects between the base 28-byte wire header and the
// extended 32-byte "hoyo" variant (spec.md §1).
type HeaderVariant int

const (
	HeaderBase HeaderVariant = iota
	HeaderHoyo
)

// Config is the configuration surface the session engine consumes
// (spec.md §6): the booleans that change how a datagram's KCP payload is
// located and validated.
type Config struct {
	ProxyProtocolV2Enabled bool
	UseConvChannel         bool
	CRC32Check             bool
	FECAdapt               bool
	HeaderVariant          HeaderVariant
}

// Output is how a Session (or the dispatcher, for handshake responses)
// writes bytes back to the wire, addressed to a User's response endpoint.
type Output interface {
	WriteTo(data []byte, to endpoint.Endpoint) (int, error)
}

// Session is the opaque per-conversation handle owned by the KCP engine
// (spec.md §3/§6). The dispatcher never inspects a Session's internals; it
// only calls the methods below.
type Session interface {
	convreg.Session

	// SetConv assigns the conversation id chosen by the dispatcher.
	SetConv(id int64)
	// User returns the session's peer identity.
	User() *endpoint.User
	// Interval reports how often this session's update() should tick.
	Interval() time.Duration
	// Executor returns the single-consumer executor this session is bound
	// to for its lifetime (spec.md §5); the dispatcher submits every
	// inbound datagram for this session through it.
	Executor() Executor
	// Read delivers a datagram's KCP payload to the session's reliable
	// input routine. On success, ownership of buf transfers to the
	// session; on error, the caller retains ownership and must release
	// it.
	Read(buf *buffer.Buffer) error
	// Close requests termination. force=false requests a graceful,
	// non-forceful close (spec.md §4.B DISCONNECT, §4.E executor-
	// inactive path); force=true tears down immediately.
	Close(force bool)
}

// SessionFactory constructs a new Session bound to user, convID, executor,
// and the shared registry, wired to write through output according to
// config. Listener callbacks other than HandleClose fire on the session's
// executor.
type SessionFactory func(output Output, listener Listener, executor Executor, config Config, registry *convreg.Registry, user endpoint.User, convID int64) Session

// Listener receives session lifecycle callbacks. OnConnected, HandleReceive
// and HandleException are invoked on the session's executor (spec.md §5
// ordering guarantee: OnConnected strictly precedes the first HandleReceive
// for that session); HandleClose runs on whichever goroutine calls
// Session.Close.
type Listener interface {
	OnConnected(s Session)
	HandleReceive(s Session, data []byte)
	HandleException(s Session, err error)
	HandleClose(s Session)
}

// Task is unit of work submitted to an Executor.
type Task func()

// ErrExecutorRejected is returned by Submit when the executor has begun
// shutting down between an IsActive check and the Submit call itself.
type ErrExecutorRejected struct{}

func (ErrExecutorRejected) Error() string { return "engine: executor rejected submission" }

// Executor is a single-consumer task runner bound to one Session for its
// lifetime (spec.md §5).
type Executor interface {
	IsActive() bool
	Submit(task Task) error
	Stop()
}

// ExecutorPool vends Executors to bind to new sessions.
type ExecutorPool interface {
	Acquire() Executor
}

// TimingWheel schedules a single delayed callback. The dispatcher schedules
// one callback per new session, Interval() after its creation; Session has
// no update method, so that callback does no work on the session.
type TimingWheel interface {
	Schedule(task func(), delay time.Duration)
}

// ChannelManager is an alternate session-lookup surface the KCP engine may
// use internally when UseConvChannel is enabled (spec.md §6); the
// dispatcher's own convreg.Registry is authoritative regardless, so a
// ChannelManager is only ever a thin adapter over it.
type ChannelManager interface {
	Get(datagram []byte) (Session, bool)
	New(origin endpoint.Endpoint, s Session, datagram []byte)
	ConvExists(convID int64) bool
}
