// Package buffer implements the reference-counted datagram buffer used to
// carry ownership of a received UDP packet across the dispatcher/session
// handoff described in spec.md §5.
//
// A Buffer is retrieved from a pool sized to the maximum datagram the
// listener accepts, mirroring the pooling discipline of the teacher's
// vendored kcp-go/v5 bufferpool.go, with an added atomic reference count:
// the backing array is only returned to the pool once every retain has a
// matching release.
package buffer

import (
	"sync"
	"sync/atomic"
)

// Pool hands out Buffers sized to size bytes.
type Pool struct {
	size int
	pool sync.Pool
}

// NewPool creates a Pool of buffers of the given capacity.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() any {
		return make([]byte, size)
	}
	return p
}

// Get returns a Buffer with one outstanding reference, ready to be filled up
// to n bytes by a socket read.
func (p *Pool) Get(n int) *Buffer {
	raw := p.pool.Get().([]byte)
	if cap(raw) < n {
		raw = make([]byte, n)
	}
	b := &Buffer{pool: p, raw: raw[:n], n: n}
	b.refs.Store(1)
	return b
}

// Buffer is a reference-counted view over a pooled byte slice.
//
// The dispatcher retains one count while stripping the PROXY header; any
// payload slice derived from Bytes() shares the same backing array and must
// not outlive the last Release. Retain/Release are safe for concurrent use
// since a Buffer may be retained by the dispatcher's exit path and the
// session's input queue concurrently.
type Buffer struct {
	pool *Pool
	raw  []byte
	off  int
	n    int
	refs atomic.Int32
}

// Bytes returns the buffer's current window: the filled portion after any
// Narrow call, or the whole filled datagram before one. The returned slice
// is only valid until the last Release.
func (b *Buffer) Bytes() []byte {
	return b.raw[b.off : b.off+b.n]
}

// Narrow shrinks the buffer's window to the sub-slice starting
// deltaOffset bytes into the current window and extending length bytes,
// without copying or touching the reference count. The ingress dispatcher
// uses this to turn a received datagram into its stripped KCP payload
// in place (spec.md §4.A: "payload as a non-owning slice over the same
// backing memory") before handing the same Buffer object down the
// dispatcher/session pipeline.
func (b *Buffer) Narrow(deltaOffset, length int) {
	if deltaOffset < 0 || length < 0 || deltaOffset+length > b.n {
		panic("buffer: narrow out of bounds")
	}
	b.off += deltaOffset
	b.n = length
}

// Retain increments the reference count. It must be called before handing
// the Buffer (or a slice derived from it) to a second owner.
func (b *Buffer) Retain() {
	b.refs.Add(1)
}

// Release decrements the reference count, returning the backing array to
// the pool once it reaches zero. Calling Release more times than Retain (or
// the initial Get) was called is a programming error; it always panics once
// the counter goes negative, since
// silently tolerating it would mask the exact double-release bug spec.md
// §8 property 7 exists to catch.
func (b *Buffer) Release() {
	if n := b.refs.Add(-1); n == 0 {
		if b.pool != nil {
			b.pool.pool.Put(b.raw[:cap(b.raw)]) //nolint:staticcheck // reset length for reuse
		}
	} else if n < 0 {
		panic("buffer: released more times than retained")
	}
}

// RefCount reports the current outstanding reference count. Intended for
// tests verifying refcount balance (spec.md §8 property 7), not production
// control flow.
func (b *Buffer) RefCount() int32 {
	return b.refs.Load()
}
