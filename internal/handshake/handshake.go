// Package handshake encodes and decodes the fixed 20-byte control datagrams
// exchanged before a conversation's KCP stream is established: CONNECT,
// DISCONNECT, and the server's handshake response.
package handshake

import "encoding/binary"

// Size is the fixed length of every control datagram.
const Size = 20

// Recognized control codes (spec.md §4.B).
const (
	CodeConnect    int32 = 255
	CodeDisconnect int32 = 404
)

// Control is a decoded 20-byte control datagram.
//
// Wire layout, all multi-byte fields as noted:
//
//	offset  size  field
//	0       4     code     (signed, big-endian)
//	4       4     reserved (little-endian, read and discarded)
//	8       4     reserved (little-endian, read and discarded)
//	12      4     enet     (signed, big-endian)
//	16      4     reserved
type Control struct {
	Code int32
	Enet int32
}

// Decode parses buf as a Control datagram. Decode only inspects length at
// the call site (IsControl); callers must not pass buffers of a different
// length.
func Decode(buf []byte) Control {
	return Control{
		Code: int32(binary.BigEndian.Uint32(buf[0:4])),
		Enet: int32(binary.BigEndian.Uint32(buf[12:16])),
	}
}

// IsControl reports whether a datagram of this length is a control
// datagram. Any length other than Size is never a control datagram.
func IsControl(n int) bool {
	return n == Size
}

// EncodeConnect builds a 20-byte CONNECT control datagram.
func EncodeConnect(enet int32) []byte {
	return encode(CodeConnect, enet)
}

// EncodeDisconnect builds a 20-byte DISCONNECT control datagram.
func EncodeDisconnect(enet int32) []byte {
	return encode(CodeDisconnect, enet)
}

func encode(code, enet int32) []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint32(buf[0:4], uint32(code))
	binary.BigEndian.PutUint32(buf[12:16], uint32(enet))
	return buf
}
