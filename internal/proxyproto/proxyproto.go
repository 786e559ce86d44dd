// Package proxyproto strips an optional PROXY protocol v2 header from an
// inbound UDP datagram, recovering the real client endpoint when the
// datagram arrived via a trusted forwarder.
//
// Only the subset of the v2 spec this core needs is implemented: detection
// of the fixed signature, the LOCAL/PROXY command, and INET4/INET6 source
// address recovery. TCP framing, PROXY v1, and UNIX-family addresses are out
// of scope (spec.md Non-goals).
package proxyproto

import (
	"encoding/binary"
	"net/netip"

	"github.com/xtaci/kcpcore/internal/endpoint"
)

// sig is the fixed 12-byte PROXY protocol v2 signature.
var sig = [12]byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// Command is the low nibble of header byte 12.
type Command byte

const (
	CommandLocal Command = 0x0
	CommandProxy Command = 0x1
)

// Family is the high nibble of header byte 13.
type Family byte

const (
	FamilyUnspec Family = 0x0
	FamilyInet4  Family = 0x1
	FamilyInet6  Family = 0x2
	FamilyUnix   Family = 0x3
)

// Result is the outcome of stripping a datagram.
type Result struct {
	// Payload is a non-owning slice over the input buffer, positioned
	// past any PROXY header.
	Payload []byte
	// Client is the endpoint to attribute the datagram to: the parsed
	// source address when proxied, otherwise the caller-supplied
	// fallback.
	Client endpoint.Endpoint
	// WasProxied reports whether a valid PROXY v2 header with a usable
	// source address was recovered.
	WasProxied bool
}

// Strip detects and parses a PROXY protocol v2 header at the start of buf.
// It never mutates buf or its read position; on any detection/parse failure
// it returns a passthrough result built from fallback.
//
// buf must outlive the returned Result's Payload slice.
func Strip(buf []byte, fallback endpoint.Endpoint) Result {
	passthrough := Result{Payload: buf, Client: fallback, WasProxied: false}

	if len(buf) < 12 {
		return passthrough
	}
	for i := 0; i < 12; i++ {
		if buf[i] != sig[i] {
			return passthrough
		}
	}
	if len(buf) < 16 {
		return passthrough
	}

	verCmd := buf[12]
	version := verCmd >> 4
	command := Command(verCmd & 0x0F)
	if version != 0x2 {
		return passthrough
	}
	if command != CommandLocal && command != CommandProxy {
		return passthrough
	}

	famProto := buf[13]
	family := Family(famProto >> 4)
	length := binary.BigEndian.Uint16(buf[14:16])
	headerLen := 16 + int(length)
	if headerLen > len(buf) {
		return passthrough
	}

	payload := buf[headerLen:]

	if command == CommandLocal {
		return Result{Payload: payload, Client: fallback, WasProxied: false}
	}

	addrBlock := buf[16:headerLen]
	switch family {
	case FamilyInet4:
		if len(addrBlock) < 12 {
			return Result{Payload: payload, Client: fallback, WasProxied: false}
		}
		src, ok := netip.AddrFromSlice(addrBlock[0:4])
		if !ok {
			return Result{Payload: payload, Client: fallback, WasProxied: false}
		}
		srcPort := binary.BigEndian.Uint16(addrBlock[8:10])
		return Result{
			Payload:    payload,
			Client:     endpoint.Endpoint{Addr: src, Port: srcPort},
			WasProxied: true,
		}
	case FamilyInet6:
		if len(addrBlock) < 36 {
			return Result{Payload: payload, Client: fallback, WasProxied: false}
		}
		src, ok := netip.AddrFromSlice(addrBlock[0:16])
		if !ok {
			return Result{Payload: payload, Client: fallback, WasProxied: false}
		}
		srcPort := binary.BigEndian.Uint16(addrBlock[32:34])
		return Result{
			Payload:    payload,
			Client:     endpoint.Endpoint{Addr: src, Port: srcPort},
			WasProxied: true,
		}
	default:
		// Unknown or UNSPEC family: header is well-formed but carries
		// no usable address, treat as unproxied.
		return Result{Payload: payload, Client: fallback, WasProxied: false}
	}
}
