// Package worker
// Author: momentics <momentics@gmail.com>
//
// The hot path: one goroutine per (port, queue), pinned to one primary
// logical core, bound to its NUMA node, busy-polling the KBD RX burst
// primitive. Cancellation is cooperative, checked once per burst; a panic
// in the user handler drains the whole node.
package worker

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/kbdingest/engine/affinity"
	"github.com/kbdingest/engine/control"
	"github.com/kbdingest/engine/descriptor"
	"github.com/kbdingest/engine/kbd"
	"github.com/kbdingest/engine/numa"
)

// PrefetchAhead is the number of packets a worker prefetches ahead of the
// one it is currently extracting, hiding DRAM latency for the mbuf header
// and payload before the extraction helper reads them.
const PrefetchAhead = 4

// State is the worker's lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateJoined
)

// Handler is the user-supplied packet callback, invoked synchronously once
// per successfully extracted packet.
type Handler func(queueID uint16, d *descriptor.Descriptor)

// Config bundles everything one worker goroutine needs to run its loop.
type Config struct {
	PortID, QueueID uint16
	CoreID          int
	NumaNode        int

	Device      kbd.Device
	Extract     kbd.ExtractFunc
	Pool        *descriptor.Pool
	Handler     Handler
	Allocator   numa.Allocator
	BurstSize   int

	// Running is the node-wide shutdown flag this worker observes between
	// bursts. The node owns it; the worker only reads it.
	Running *atomic.Bool

	// Metrics, when non-nil, receives per-queue packet/failure/panic
	// counters under keys scoped by port and queue id.
	Metrics *control.MetricsRegistry
}

// Worker is one (port, queue) pinned execution unit.
type Worker struct {
	cfg   Config
	state atomic.Int32
	done  chan struct{}
}

// New constructs a Worker in the Idle state. It does not start a goroutine.
func New(cfg Config) *Worker {
	return &Worker{cfg: cfg, done: make(chan struct{})}
}

// State returns the worker's current lifecycle stage.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// CoreID reports the logical core this worker is pinned to.
func (w *Worker) CoreID() int {
	return w.cfg.CoreID
}

// QueueID reports the queue this worker services.
func (w *Worker) QueueID() uint16 {
	return w.cfg.QueueID
}

// Start spawns the worker's goroutine (Idle -> Running). The goroutine
// locks its OS thread for its entire lifetime so affinity/NUMA binding
// calls take effect and persist.
func (w *Worker) Start() {
	w.state.Store(int32(StateRunning))
	go w.run()
}

// Join blocks until the worker goroutine has exited (Stopping -> Joined).
// Safe to call multiple times.
func (w *Worker) Join() {
	<-w.done
	w.state.Store(int32(StateJoined))
}

func (w *Worker) run() {
	defer close(w.done)
	defer w.state.Store(int32(StateStopping))
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: handler panic on port=%d queue=%d: %v", w.cfg.PortID, w.cfg.QueueID, r)
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.Set(fmt.Sprintf("port.%d.queue.%d.handler_panic", w.cfg.PortID, w.cfg.QueueID), fmt.Sprint(r))
			}
			// HandlerPanic policy: mark the node's running flag false so
			// siblings drain rather than racing on a half-dead pipeline.
			if w.cfg.Running != nil {
				w.cfg.Running.Store(false)
			}
		}
	}()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cfg.CoreID >= 0 {
		if err := affinity.SetAffinity(w.cfg.CoreID); err != nil {
			log.Printf("worker: SetAffinity(%d) failed for port=%d queue=%d: %v", w.cfg.CoreID, w.cfg.PortID, w.cfg.QueueID, err)
		}
	}
	if w.cfg.NumaNode >= 0 && w.cfg.Allocator != nil && w.cfg.Allocator.Available() {
		if err := w.cfg.Allocator.BindThreadToNode(w.cfg.NumaNode); err != nil {
			log.Printf("worker: BindThreadToNode(%d) failed for port=%d queue=%d: %v", w.cfg.NumaNode, w.cfg.PortID, w.cfg.QueueID, err)
		}
	}

	burstSize := w.cfg.BurstSize
	if burstSize <= 0 {
		burstSize = 32
	}
	mbufs := make([]kbd.Mbuf, burstSize)

	extractFailures := 0
	packetsHandled := 0
	metricsPrefix := fmt.Sprintf("port.%d.queue.%d.", w.cfg.PortID, w.cfg.QueueID)

	for w.cfg.Running == nil || w.cfg.Running.Load() {
		n := w.cfg.Device.RxBurst(w.cfg.PortID, w.cfg.QueueID, mbufs)

		prefetchN := PrefetchAhead
		if n < prefetchN {
			prefetchN = n
		}
		for i := 0; i < prefetchN; i++ {
			touchMbuf(w.cfg.Device, w.cfg.Extract, mbufs[i])
		}

		for i := 0; i < n; i++ {
			if i+PrefetchAhead < n {
				touchMbuf(w.cfg.Device, w.cfg.Extract, mbufs[i+PrefetchAhead])
			}

			mbuf := mbufs[i]
			res, ok := w.cfg.Extract(mbuf)
			if !ok || res.DataLen == 0 {
				// ExtractionFailed: per-packet, non-fatal. Free the mbuf;
				// do not invoke the handler; do not acquire a descriptor.
				extractFailures++
				if w.cfg.Metrics != nil {
					w.cfg.Metrics.Set(metricsPrefix+"extraction_failures", extractFailures)
				}
				if extractFailures%100 == 1 {
					log.Printf("worker: extraction failed on port=%d queue=%d (count=%d)", w.cfg.PortID, w.cfg.QueueID, extractFailures)
				}
				w.cfg.Device.PktMbufFree(mbuf)
				continue
			}

			d := w.cfg.Pool.Acquire()
			if d == nil {
				// Pool empty under the drop overflow policy: the packet is
				// dropped here rather than stalling the RX ring.
				w.cfg.Device.PktMbufFree(mbuf)
				continue
			}
			d.DataPtr = res.DataPtr
			d.DataLen = res.DataLen
			d.SrcIPPtr = res.SrcIPPtr
			d.SrcIPLen = res.SrcIPLen
			d.DstIPPtr = res.DstIPPtr
			d.DstIPLen = res.DstIPLen
			d.SrcPort = res.SrcPort
			d.DstPort = res.DstPort
			d.QueueID = w.cfg.QueueID
			d.MbufPtr = uintptr(mbuf)

			w.cfg.Handler(w.cfg.QueueID, d)

			w.cfg.Device.PktMbufFree(mbuf)
			w.cfg.Pool.Release(d)

			packetsHandled++
			if w.cfg.Metrics != nil {
				w.cfg.Metrics.Set(metricsPrefix+"packets_handled", packetsHandled)
			}
		}
		// n == 0: fall straight through to the next iteration (busy poll).
	}
}

// touchMbuf issues the T0-prefetch equivalent: a speculative read pulling
// the mbuf's header and payload cache lines into L1 before the real
// extraction pass reads them. Go exposes no portable PREFETCHT0 intrinsic,
// so when dev implements kbd.Prefetcher its cheap single-touch hook is
// used; a binding without one falls back to running ExtractFunc itself,
// at the cost of repeating the decode's O(1) pointer arithmetic a second
// time per packet inside the prefetch window.
func touchMbuf(dev kbd.Device, extract kbd.ExtractFunc, m kbd.Mbuf) {
	if p, ok := dev.(kbd.Prefetcher); ok {
		p.PrefetchMbuf(m)
		return
	}
	_, _ = extract(m)
}
