// Package endpoint defines the address and identity types shared across the
// dispatcher, registry, and waiter table.
package endpoint

import (
	"net"
	"net/netip"
)

// Endpoint is an IP address plus a UDP port. Two endpoints compare equal by
// (address, port); the zone is intentionally ignored since conversations are
// keyed by the wire-visible 4-tuple, not by interface scope.
type Endpoint struct {
	Addr netip.Addr
	Port uint16
}

// FromUDPAddr builds an Endpoint from a net.UDPAddr as returned by a socket
// read. Returns the zero Endpoint if addr is nil.
func FromUDPAddr(addr *net.UDPAddr) Endpoint {
	if addr == nil {
		return Endpoint{}
	}
	a, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return Endpoint{}
	}
	return Endpoint{Addr: a.Unmap(), Port: uint16(addr.Port)}
}

// UDPAddr converts back to a *net.UDPAddr for use with net.PacketConn.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.Addr.AsSlice(), Port: int(e.Port)}
}

// IsZero reports whether e is the unset endpoint.
func (e Endpoint) IsZero() bool {
	return !e.Addr.IsValid() && e.Port == 0
}

func (e Endpoint) String() string {
	return netip.AddrPortFrom(e.Addr, e.Port).String()
}

// User is the identity of the peer of a session.
//
// Once created, Origin and Local are immutable for the session's lifetime.
// Response may be rewritten by the transport only by the session owner
// (e.g. if a proxy re-homes mid-session), never by the dispatcher after
// construction.
type User struct {
	// Response is where outbound datagrams must be sent: the proxy's
	// endpoint if the datagram was proxied, otherwise the direct peer.
	Response Endpoint
	// Origin is the real client endpoint, extracted from the PROXY
	// header, or equal to Response when the datagram was not proxied.
	Origin Endpoint
	// Local is the server-side recipient address from the datagram.
	Local Endpoint
	// Attachment is an opaque application-attached value.
	Attachment any
}
