package manager

import (
	"testing"
	"time"

	"github.com/kbdingest/engine/descriptor"
	"github.com/kbdingest/engine/kbd/simulated"
	"github.com/kbdingest/engine/numanode"
	"github.com/kbdingest/engine/port"
	"github.com/kbdingest/engine/topology"
	"github.com/kbdingest/engine/worker"
)

// newTestManager builds a Manager with a fixed, fabricated two-node
// topology, bypassing real sysfs discovery so tests are deterministic.
func newTestManager() *Manager {
	m := New()
	m.numaTopo = &topology.NumaTopology{
		NumNodes:  2,
		NodeCores: map[int][]int{0: {1, 2}, 1: {3, 4}},
		NicNode:   map[string]int{"eth0": 1},
	}
	m.nodes[0] = numanode.New(0, []int{1, 2}, nil)
	m.nodes[1] = numanode.New(1, []int{3, 4}, nil)
	return m
}

func TestDistributeInterfaces_KnownNIC(t *testing.T) {
	m := newTestManager()
	out := m.DistributeInterfaces([]port.Spec{{PortID: 0, IfName: "eth0", NumaNode: -1}})
	if out[0].NumaNode != 1 {
		t.Errorf("NumaNode = %d, want 1 (resolved from eth0)", out[0].NumaNode)
	}
}

// Unknown NUMA node defaults to node 0.
func TestDistributeInterfaces_UnknownNICDefaultsToNodeZero(t *testing.T) {
	m := newTestManager()
	out := m.DistributeInterfaces([]port.Spec{{PortID: 1, IfName: "eth99", NumaNode: -1}})
	if out[0].NumaNode != 0 {
		t.Errorf("NumaNode = %d, want 0 (unknown NIC default)", out[0].NumaNode)
	}
}

func TestDistributeInterfaces_PreResolvedNodeUntouched(t *testing.T) {
	m := newTestManager()
	out := m.DistributeInterfaces([]port.Spec{{PortID: 2, IfName: "eth0", NumaNode: 1}})
	if out[0].NumaNode != 1 {
		t.Errorf("NumaNode = %d, want 1 (already resolved and in range, left untouched)", out[0].NumaNode)
	}
}

// A pre-resolved but out-of-range node is normalized to 0, the same
// fallback unresolved nodes get.
func TestDistributeInterfaces_OutOfRangeNodeClamped(t *testing.T) {
	m := newTestManager()
	out := m.DistributeInterfaces([]port.Spec{{PortID: 3, IfName: "eth0", NumaNode: 5}})
	if out[0].NumaNode != 0 {
		t.Errorf("NumaNode = %d, want 0 (out-of-range node clamped)", out[0].NumaNode)
	}
}

func TestInitKBD_ConfiguresAndRegistersAcrossNodes(t *testing.T) {
	m := newTestManager()
	dev0 := simulated.New()
	dev1 := simulated.New()

	bindings := []PortBinding{
		{Spec: port.Spec{PortID: 0, IfName: "unknown-if", NumaNode: -1, NumRxQueues: 1, NumTxQueues: 1}, Device: dev0, Extract: dev0.Extract},
		{Spec: port.Spec{PortID: 1, IfName: "eth0", NumaNode: -1, NumRxQueues: 1, NumTxQueues: 1}, Device: dev1, Extract: dev1.Extract},
	}

	if err := m.InitKBD(bindings, port.DefaultConfig(), 16); err != nil {
		t.Fatalf("InitKBD: %v", err)
	}

	if len(m.ports) != 2 {
		t.Fatalf("got %d configured ports, want 2", len(m.ports))
	}

	// dev0's port lands on node 0, dev1's on node 1 (via eth0): each
	// device's EAL must be initialized exactly once, before its port setup.
	if got := dev0.EALInitCalls(); got != 1 {
		t.Errorf("dev0 EALInitCalls = %d, want 1", got)
	}
	if got := dev1.EALInitCalls(); got != 1 {
		t.Errorf("dev1 EALInitCalls = %d, want 1", got)
	}
}

func TestStartStopPacketProcessing_EndToEnd(t *testing.T) {
	m := newTestManager()
	dev := simulated.New()
	dev.Enqueue(0, 0, simulated.Packet{Payload: []byte("payload")})

	bindings := []PortBinding{
		{Spec: port.Spec{PortID: 0, IfName: "eth0", NumaNode: -1, NumRxQueues: 1, NumTxQueues: 1}, Device: dev, Extract: dev.Extract},
	}
	if err := m.InitKBD(bindings, port.DefaultConfig(), 16); err != nil {
		t.Fatalf("InitKBD: %v", err)
	}

	handled := make(chan struct{}, 1)
	handler := worker.Handler(func(queueID uint16, d *descriptor.Descriptor) {
		handled <- struct{}{}
	})

	if err := m.StartPacketProcessing(handler, 8); err != nil {
		t.Fatalf("StartPacketProcessing: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the engine to process a packet end to end")
	}

	m.StopPacketProcessing()

	if got := dev.StoppedCount(0); got != 1 {
		t.Errorf("DevStop(0) called %d times, want 1", got)
	}
	if got := dev.ClosedCount(0); got != 1 {
		t.Errorf("DevClose(0) called %d times, want 1", got)
	}
	if got := dev.EALCleanupCalls(); got != 1 {
		t.Errorf("EALCleanup called %d times, want 1", got)
	}

	m.StopPacketProcessing() // idempotent: no further teardown calls

	if got := dev.StoppedCount(0); got != 1 {
		t.Errorf("DevStop(0) called %d times after second Stop, want 1 (idempotent)", got)
	}
	if got := dev.EALCleanupCalls(); got != 1 {
		t.Errorf("EALCleanup called %d times after second Stop, want 1 (idempotent)", got)
	}
}

func TestNodes_ReportsConstructedNodes(t *testing.T) {
	m := newTestManager()
	ids := m.Nodes()
	if len(ids) != 2 {
		t.Errorf("got %d nodes, want 2", len(ids))
	}
}
