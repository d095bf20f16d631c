package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbdingest/engine/descriptor"
	"github.com/kbdingest/engine/kbd"
	"github.com/kbdingest/engine/kbd/simulated"
)

// Scripted three-mbuf cycle: enqueue three packets, run one worker,
// confirm each is handled exactly once, in order, and every mbuf is freed.
func TestWorker_ScriptedThreeMbufCycle(t *testing.T) {
	dev := simulated.New()
	dev.Enqueue(0, 0,
		simulated.Packet{SrcIP: []byte{10, 0, 0, 1}, DstIP: []byte{10, 0, 0, 2}, SrcPort: 1111, DstPort: 80, Payload: []byte("aaa")},
		simulated.Packet{SrcIP: []byte{10, 0, 0, 3}, DstIP: []byte{10, 0, 0, 4}, SrcPort: 2222, DstPort: 443, Payload: []byte("bbb")},
		simulated.Packet{SrcIP: []byte{10, 0, 0, 5}, DstIP: []byte{10, 0, 0, 6}, SrcPort: 3333, DstPort: 22, Payload: []byte("ccc")},
	)

	pool := descriptor.New(8, -1, nil)

	var mu sync.Mutex
	var seenPorts []uint16
	handled := make(chan struct{}, 3)

	running := &atomic.Bool{}
	running.Store(true)

	w := New(Config{
		PortID: 0, QueueID: 0, CoreID: -1, NumaNode: -1,
		Device:    dev,
		Extract:   dev.Extract,
		Pool:      pool,
		BurstSize: 8,
		Running:   running,
		Handler: func(queueID uint16, d *descriptor.Descriptor) {
			mu.Lock()
			seenPorts = append(seenPorts, d.DstPort)
			mu.Unlock()
			handled <- struct{}{}
		},
	})
	w.Start()

	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for packet %d to be handled", i)
		}
	}

	running.Store(false)
	w.Join()

	mu.Lock()
	defer mu.Unlock()
	want := []uint16{80, 443, 22}
	if len(seenPorts) != len(want) {
		t.Fatalf("handled %d packets, want %d", len(seenPorts), len(want))
	}
	for i, p := range want {
		if seenPorts[i] != p {
			t.Errorf("packet %d: dst port = %d, want %d (FIFO order violated)", i, seenPorts[i], p)
		}
	}
	for m := kbd.Mbuf(1); m <= 3; m++ {
		if got := dev.FreedCount(m); got != 1 {
			t.Errorf("mbuf %d freed %d times, want 1", m, got)
		}
	}
}

// Invariant: when the device implements kbd.Prefetcher, the lookahead step
// uses it instead of re-running ExtractFunc, so each packet is decoded
// exactly once even though the burst fits entirely inside PrefetchAhead.
func TestWorker_PrefetchUsesDeviceHookNotDoubleExtract(t *testing.T) {
	dev := simulated.New()
	dev.Enqueue(0, 0,
		simulated.Packet{DstPort: 80, Payload: []byte("a")},
		simulated.Packet{DstPort: 443, Payload: []byte("b")},
		simulated.Packet{DstPort: 22, Payload: []byte("c")},
	)

	pool := descriptor.New(8, -1, nil)
	handled := make(chan struct{}, 3)
	running := &atomic.Bool{}
	running.Store(true)

	w := New(Config{
		PortID: 0, QueueID: 0, CoreID: -1, NumaNode: -1,
		Device:    dev,
		Extract:   dev.Extract,
		Pool:      pool,
		BurstSize: 8,
		Running:   running,
		Handler: func(queueID uint16, d *descriptor.Descriptor) {
			handled <- struct{}{}
		},
	})
	w.Start()

	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for packet %d to be handled", i)
		}
	}

	running.Store(false)
	w.Join()

	if got := dev.ExtractCalls(); got != 3 {
		t.Errorf("ExtractCalls = %d, want 3 (one per packet, prefetch hook must not re-decode)", got)
	}
}

// Invariant: a failed extraction is skipped (not handled) but the mbuf is
// still freed exactly once.
func TestWorker_ExtractionFailureSkipsHandlerButFreesMbuf(t *testing.T) {
	dev := simulated.New()
	dev.Enqueue(0, 0,
		simulated.Packet{ExtractFails: true},
		simulated.Packet{SrcIP: []byte{1, 2, 3, 4}, DstIP: []byte{5, 6, 7, 8}, Payload: []byte("ok")},
	)

	pool := descriptor.New(4, -1, nil)
	handled := make(chan uint16, 2)
	running := &atomic.Bool{}
	running.Store(true)

	w := New(Config{
		PortID: 0, QueueID: 0, CoreID: -1, NumaNode: -1,
		Device: dev, Extract: dev.Extract, Pool: pool, BurstSize: 4, Running: running,
		Handler: func(queueID uint16, d *descriptor.Descriptor) {
			handled <- d.DstPort
		},
	})
	w.Start()

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the one successful packet to be handled")
	}

	running.Store(false)
	w.Join()

	select {
	case <-handled:
		t.Fatal("handler invoked twice; the failed extraction should have been skipped")
	default:
	}
	for m := kbd.Mbuf(1); m <= 2; m++ {
		if got := dev.FreedCount(m); got != 1 {
			t.Errorf("mbuf %d freed %d times, want 1", m, got)
		}
	}
}

// Cancellation latency: flipping Running to false must cause the worker
// to exit promptly even with no data to receive (busy-poll path).
func TestWorker_CancellationIsPrompt(t *testing.T) {
	dev := simulated.New()
	pool := descriptor.New(4, -1, nil)
	running := &atomic.Bool{}
	running.Store(true)

	w := New(Config{
		PortID: 0, QueueID: 0, CoreID: -1, NumaNode: -1,
		Device: dev, Extract: dev.Extract, Pool: pool, BurstSize: 4, Running: running,
		Handler: func(queueID uint16, d *descriptor.Descriptor) {},
	})
	w.Start()

	time.Sleep(10 * time.Millisecond)
	start := time.Now()
	running.Store(false)

	done := make(chan struct{})
	go func() {
		w.Join()
		close(done)
	}()

	select {
	case <-done:
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("worker took %v to stop after cancellation, want well under 1s", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after Running was cleared")
	}
}

// A panic inside the handler must not crash the test binary; it is
// recovered and the node-wide Running flag is cleared.
func TestWorker_HandlerPanicClearsRunning(t *testing.T) {
	dev := simulated.New()
	dev.Enqueue(0, 0, simulated.Packet{Payload: []byte("x")})
	pool := descriptor.New(4, -1, nil)
	running := &atomic.Bool{}
	running.Store(true)

	w := New(Config{
		PortID: 0, QueueID: 0, CoreID: -1, NumaNode: -1,
		Device: dev, Extract: dev.Extract, Pool: pool, BurstSize: 4, Running: running,
		Handler: func(queueID uint16, d *descriptor.Descriptor) {
			panic("boom")
		},
	})
	w.Start()
	w.Join()

	if running.Load() {
		t.Error("expected Running to be cleared after a handler panic")
	}
}

var _ kbd.Device = (*simulated.Device)(nil)
var _ kbd.Prefetcher = (*simulated.Device)(nil)
