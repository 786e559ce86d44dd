package engine

import (
	"encoding/binary"

	"github.com/xtaci/kcpcore/internal/convreg"
	"github.com/xtaci/kcpcore/internal/endpoint"
)

// RegistryChannelManager adapts a convreg.Registry to the ChannelManager
// contract for engines configured with UseConvChannel. It is a thin
// read-through: the registry remains the single source of truth the
// dispatcher maintains, this type exists only so a pluggable engine that
// expects a ChannelManager has one to call.
type RegistryChannelManager struct {
	registry *convreg.Registry
}

// NewRegistryChannelManager wraps r.
func NewRegistryChannelManager(r *convreg.Registry) *RegistryChannelManager {
	return &RegistryChannelManager{registry: r}
}

// Get extracts the 64-bit conv id from the first 8 bytes of datagram and
// looks it up in the registry.
func (c *RegistryChannelManager) Get(datagram []byte) (Session, bool) {
	if len(datagram) < 8 {
		return nil, false
	}
	convID := int64(binary.BigEndian.Uint64(datagram[:8]))
	s := c.registry.GetByConv(convID)
	if s == nil {
		return nil, false
	}
	sess, ok := s.(Session)
	return sess, ok
}

// New is a no-op: insertion into the registry is always performed by the
// dispatcher itself (spec.md §4.E), never by the channel manager, so both
// indexes stay under a single writer.
func (c *RegistryChannelManager) New(origin endpoint.Endpoint, s Session, datagram []byte) {
}

// ConvExists reports whether convID is already assigned.
func (c *RegistryChannelManager) ConvExists(convID int64) bool {
	return c.registry.ContainsConv(convID)
}
