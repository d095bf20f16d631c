// Package simulated
// Author: momentics <momentics@gmail.com>
//
// An in-memory kbd.Device used only by tests: it holds a scripted queue of
// mbufs per (port, queue) and a matching extraction table, so worker and
// numanode tests can exercise the full burst/extract/handle/free cycle
// without real hardware.
package simulated

import (
	"sync"
	"unsafe"

	"github.com/kbdingest/engine/kbd"
)

// Packet is one scripted frame: either real header+payload bytes, or a
// sentinel that forces extraction to fail for this mbuf.
type Packet struct {
	SrcIP, DstIP     []byte
	SrcPort, DstPort uint16
	Payload          []byte
	ExtractFails     bool
}

type queueKey struct {
	port, queue uint16
}

// Device is a scripted, thread-safe fake satisfying kbd.Device.
type Device struct {
	mu     sync.Mutex
	order  map[queueKey][]kbd.Mbuf
	mbufs  map[kbd.Mbuf]Packet
	nextID kbd.Mbuf
	freed  map[kbd.Mbuf]int

	ealInitCalls    int
	lastEALArgs     []string
	ealCleanupCalls int
	stopped         map[uint16]int
	closed          map[uint16]int
	extractCalls    int
}

// New creates an empty simulated device.
func New() *Device {
	return &Device{
		order:   make(map[queueKey][]kbd.Mbuf),
		mbufs:   make(map[kbd.Mbuf]Packet),
		freed:   make(map[kbd.Mbuf]int),
		stopped: make(map[uint16]int),
		closed:  make(map[uint16]int),
		nextID:  1,
	}
}

// Enqueue schedules pkts to be returned by future RxBurst calls on
// (port, queue), in order.
func (d *Device) Enqueue(port, queue uint16, pkts ...Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := queueKey{port, queue}
	for _, p := range pkts {
		id := d.nextID
		d.nextID++
		d.mbufs[id] = p
		d.order[k] = append(d.order[k], id)
	}
}

func (d *Device) EALInit(argv []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ealInitCalls++
	d.lastEALArgs = argv
	return nil
}

func (d *Device) EALCleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ealCleanupCalls++
}

// EALInitCalls reports how many times EALInit was invoked.
func (d *Device) EALInitCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ealInitCalls
}

// LastEALArgs returns the argv passed to the most recent EALInit call.
func (d *Device) LastEALArgs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastEALArgs
}

// EALCleanupCalls reports how many times EALCleanup was invoked.
func (d *Device) EALCleanupCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ealCleanupCalls
}

func (d *Device) MempoolCreate(cfg kbd.MempoolConfig) (kbd.Mempool, error) {
	return kbd.Mempool(1), nil
}

func (d *Device) DevIsValidPort(portID uint16) bool { return true }

func (d *Device) DevConfigure(portID uint16, cfg kbd.DeviceConfig) error { return nil }

func (d *Device) RxQueueSetup(portID, queueID uint16, ringSize uint16, socketID int, pool kbd.Mempool) error {
	return nil
}

func (d *Device) TxQueueSetup(portID, queueID uint16, ringSize uint16, socketID int) error {
	return nil
}

func (d *Device) DevStart(portID uint16) error { return nil }

func (d *Device) DevStop(portID uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped[portID]++
	return nil
}

func (d *Device) DevClose(portID uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed[portID]++
	return nil
}

// StoppedCount reports how many times DevStop(portID) was invoked.
func (d *Device) StoppedCount(portID uint16) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped[portID]
}

// ClosedCount reports how many times DevClose(portID) was invoked.
func (d *Device) ClosedCount(portID uint16) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed[portID]
}

func (d *Device) PromiscEnable(portID uint16) error { return nil }

func (d *Device) DevSocketID(portID uint16) int { return -1 }

// RxBurst pops up to len(out) scripted mbufs for (port, queue).
func (d *Device) RxBurst(portID, queueID uint16, out []kbd.Mbuf) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := queueKey{portID, queueID}
	ids := d.order[k]
	n := len(ids)
	if n > len(out) {
		n = len(out)
	}
	copy(out, ids[:n])
	d.order[k] = ids[n:]
	return n
}

func (d *Device) PktMbufFree(m kbd.Mbuf) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freed[m]++
}

// FreedCount reports how many times m was passed to PktMbufFree.
func (d *Device) FreedCount(m kbd.Mbuf) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freed[m]
}

// PrefetchMbuf satisfies kbd.Prefetcher with a single map lookup, the
// scripted-device equivalent of a cache-line touch: far cheaper than
// running Extract, which also decodes IPs/ports/payload pointers.
func (d *Device) PrefetchMbuf(m kbd.Mbuf) {
	d.mu.Lock()
	_, _ = d.mbufs[m]
	d.mu.Unlock()
}

// ExtractCalls reports how many times Extract was invoked.
func (d *Device) ExtractCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.extractCalls
}

// Extract is a kbd.ExtractFunc reading back the scripted Packet for m.
func (d *Device) Extract(m kbd.Mbuf) (kbd.ExtractResult, bool) {
	d.mu.Lock()
	d.extractCalls++
	p, ok := d.mbufs[m]
	d.mu.Unlock()
	if !ok || p.ExtractFails {
		return kbd.ExtractResult{}, false
	}
	res := kbd.ExtractResult{
		SrcPort: p.SrcPort,
		DstPort: p.DstPort,
		DataLen: len(p.Payload),
	}
	if len(p.SrcIP) > 0 {
		res.SrcIPPtr = unsafe.Pointer(&p.SrcIP[0])
		res.SrcIPLen = len(p.SrcIP)
	}
	if len(p.DstIP) > 0 {
		res.DstIPPtr = unsafe.Pointer(&p.DstIP[0])
		res.DstIPLen = len(p.DstIP)
	}
	if len(p.Payload) > 0 {
		res.DataPtr = unsafe.Pointer(&p.Payload[0])
	}
	return res, true
}
