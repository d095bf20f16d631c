// Package port
// Author: momentics <momentics@gmail.com>
//
// Translates a declarative Config into KBD device state: EAL argument
// derivation, per-node mempool creation, and the port bring-up sequence,
// all expressed against the kbd.Device abstraction.
package port

import "github.com/kbdingest/engine/kbd"

// Spec identifies one network port participating in the engine.
type Spec struct {
	PortID      uint16
	IfName      string
	NumaNode    int // -1 if unresolved
	NumRxQueues uint16
	NumTxQueues uint16
}

// Config is the declarative configuration driving one port's KBD setup.
type Config struct {
	RxRingSize uint32
	TxRingSize uint32

	NumMbufs      uint32
	MbufCacheSize uint32
	DataRoomSize  uint16

	RSSEnable bool
	RSSHashFn uint64 // 0 means "use DefaultRSSHashMask"
	RSSKey    []byte // optional, exactly 40 bytes when present

	JumboFrames bool
	MaxRxPktLen uint32

	HWChecksum bool
	TSO        bool
	UDPTSO     bool
	LRO        bool
	GRO        bool
	MaxTSOSegmentSize uint16

	Promiscuous bool

	UseHugePages   bool
	SocketMemMB    []uint32 // per-node quota, index = node id
	NumaLocalAlloc bool
}

// DefaultConfig returns the standard single-port starting point: 1K rings,
// an 8191-mbuf pool, RSS and hardware checksum on, hugepages with a 1 GB
// quota on each of the first two nodes.
func DefaultConfig() Config {
	return Config{
		RxRingSize:        1024,
		TxRingSize:        1024,
		NumMbufs:          8191,
		MbufCacheSize:     250,
		DataRoomSize:      2048,
		RSSEnable:         true,
		RSSHashFn:         0, // resolved to kbd.DefaultRSSHashMask
		JumboFrames:       false,
		MaxRxPktLen:       1518,
		HWChecksum:        true,
		TSO:               false,
		UDPTSO:            false,
		LRO:               false,
		GRO:               false,
		MaxTSOSegmentSize: 1460,
		Promiscuous:       true,
		UseHugePages:      true,
		SocketMemMB:       []uint32{1024, 1024},
		NumaLocalAlloc:    true,
	}
}

// WithJumboFrames returns a copy of c configured for the given MTU.
func (c Config) WithJumboFrames(mtu uint32) Config {
	c.JumboFrames = true
	c.MaxRxPktLen = mtu + 18 // Ethernet header (14) + VLAN tag (4)
	c.DataRoomSize = uint16(c.MaxRxPktLen + 128)
	return c
}

// resolvedRSSHashFn returns the configured mask, or the documented default
// (IPv4-TCP ∪ IPv4-UDP ∪ L4-dst-only) when unset.
func (c Config) resolvedRSSHashFn() uint64 {
	if c.RSSHashFn != 0 {
		return c.RSSHashFn
	}
	return kbd.DefaultRSSHashMask
}
