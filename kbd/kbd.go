// Package kbd
// Author: momentics <momentics@gmail.com>
//
// Abstract capability set of the kernel-bypass poll-mode driver (KBD) that
// the engine core consumes as a black box: EAL lifecycle, mempool
// creation, device configuration, and the RX burst primitive. No
// implementation of an actual vendor driver ships here — Device is
// satisfied by production bindings the deployment environment supplies,
// and by the in-memory kbd/simulated package used for tests.
package kbd

import "unsafe"

// Mbuf is an opaque handle standing in for the vendor's packet buffer
// pointer. It is never dereferenced by engine code directly — only passed
// between Device and ExtractFunc.
type Mbuf uintptr

// DeviceConfig mirrors the subset of KBD device configuration the port
// configurator needs to express RSS, offloads, and queue counts.
type DeviceConfig struct {
	NumRxQueues uint16
	NumTxQueues uint16

	RSSEnable   bool
	RSSHashFunc uint64
	RSSKey      []byte // optional, 40 bytes when present

	MQModeRSS bool

	MaxRxPktLen uint32

	OffloadScatter   bool
	OffloadRxCksum   bool
	OffloadTxIPCksum bool
	OffloadTxUDPCksum bool
	OffloadTxTCPCksum bool
	OffloadTxTCPTSO  bool
	OffloadTxUDPTSO  bool
	OffloadMultiSegs bool
	OffloadRxLRO     bool
	OffloadRxGRO     bool

	TSOMaxSegSize uint16
}

// MempoolConfig mirrors the KBD mempool_create arguments.
type MempoolConfig struct {
	Name      string
	NumMbufs  uint32
	CacheSize uint32
	PrivSize  uint32
	DataRoom  uint16
	SocketID  int
}

// Mempool is an opaque handle to a created mbuf pool.
type Mempool uintptr

// Device is the KBD capability set the engine depends on: EAL lifecycle,
// mempool creation, device and queue configuration, and the RX burst
// primitive.
type Device interface {
	EALInit(argv []string) error
	EALCleanup()

	MempoolCreate(cfg MempoolConfig) (Mempool, error)

	DevIsValidPort(portID uint16) bool
	DevConfigure(portID uint16, cfg DeviceConfig) error
	RxQueueSetup(portID uint16, queueID uint16, ringSize uint16, socketID int, pool Mempool) error
	TxQueueSetup(portID uint16, queueID uint16, ringSize uint16, socketID int) error
	DevStart(portID uint16) error
	DevStop(portID uint16) error
	DevClose(portID uint16) error
	PromiscEnable(portID uint16) error
	DevSocketID(portID uint16) int

	// RxBurst polls up to len(out) packets into out, returning the count
	// actually received (0 <= n <= len(out)); never blocks.
	RxBurst(portID, queueID uint16, out []Mbuf) int
	PktMbufFree(m Mbuf)
}

// ExtractResult is the data ExtractFunc recovers from one mbuf. Pointers
// are interior references into the mbuf's own backing memory (no copy);
// a real binding constructs them with unsafe.Pointer arithmetic over the
// mbuf's data room, exactly as the native decoder would.
type ExtractResult struct {
	SrcIPPtr unsafe.Pointer
	SrcIPLen int
	DstIPPtr unsafe.Pointer
	DstIPLen int
	SrcPort  uint16
	DstPort  uint16
	DataPtr  unsafe.Pointer
	DataLen  int
}

// ExtractFunc is the pure header-decoding helper consumed as a function:
// given an mbuf, it returns the parsed metadata and whether extraction
// succeeded. It performs no heap allocation in a real binding; all pointers
// in ExtractResult alias memory interior to the mbuf.
type ExtractFunc func(m Mbuf) (ExtractResult, bool)

// Prefetcher is an optional capability a Device may implement alongside
// RxBurst: a single cache-line touch of the mbuf's backing memory, cheaper
// than running the full ExtractFunc just to warm the cache before the real
// extraction pass reads it. A Device that doesn't implement this forces
// worker lookahead to fall back to calling ExtractFunc twice per packet.
type Prefetcher interface {
	PrefetchMbuf(m Mbuf)
}

// RSS hash-function flags. The default mask hashes IPv4-TCP and IPv4-UDP
// on the destination port only, the common discriminator in market-data
// streams.
const (
	ETHRSSNonfragIPv4TCP uint64 = 1 << 0
	ETHRSSNonfragIPv4UDP uint64 = 1 << 1
	ETHRSSL4DstOnly      uint64 = 1 << 2

	DefaultRSSHashMask = ETHRSSNonfragIPv4TCP | ETHRSSNonfragIPv4UDP | ETHRSSL4DstOnly
)
