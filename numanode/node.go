// Package numanode
// Author: momentics <momentics@gmail.com>
//
// One NUMA node's share of the engine: the physical cores local to it, the
// ports registered against it, and the worker pool spun up across those
// cores. Queues round-robin over local cores; stop joins workers in LIFO
// order.
package numanode

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/kbdingest/engine/control"
	"github.com/kbdingest/engine/descriptor"
	"github.com/kbdingest/engine/errs"
	"github.com/kbdingest/engine/kbd"
	"github.com/kbdingest/engine/numa"
	"github.com/kbdingest/engine/port"
	"github.com/kbdingest/engine/worker"
)

// State is the node's worker-pool lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

// portBinding is one port registered to this node, together with the
// device, extraction function, and descriptor pool its workers will use.
type portBinding struct {
	spec    port.Spec
	device  kbd.Device
	extract kbd.ExtractFunc
	pool    *descriptor.Pool
}

// NumaNode owns one NUMA node's local cores, registered ports, and the
// worker goroutines currently servicing them.
type NumaNode struct {
	ID         int
	LocalCores []int // primary physical cores, excludes core 0
	Allocator  numa.Allocator
	Metrics    *control.MetricsRegistry

	mu      sync.Mutex
	state   State
	ports   []portBinding
	workers []*worker.Worker
	running *atomic.Bool
}

// New constructs a NumaNode. localCores should come from
// topology.NumaTopology.NodePhysicalCores for this node id.
func New(id int, localCores []int, alloc numa.Allocator) *NumaNode {
	return &NumaNode{ID: id, LocalCores: append([]int(nil), localCores...), Allocator: alloc}
}

// WithMetrics attaches a metrics registry that future StartWorkers calls
// will pass down to every worker they spawn. Returns n for chaining.
func (n *NumaNode) WithMetrics(m *control.MetricsRegistry) *NumaNode {
	n.Metrics = m
	return n
}

// State returns the node's current worker-pool lifecycle stage.
func (n *NumaNode) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Workers returns the currently running workers, in start order. Intended
// for diagnostics and tests; nil when no pool is running.
func (n *NumaNode) Workers() []*worker.Worker {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*worker.Worker(nil), n.workers...)
}

// RegisterPort attaches a port (with its already-configured device, packet
// extractor, and descriptor pool) to this node. Must be called before
// StartWorkers.
func (n *NumaNode) RegisterPort(spec port.Spec, device kbd.Device, extract kbd.ExtractFunc, pool *descriptor.Pool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ports = append(n.ports, portBinding{spec: spec, device: device, extract: extract, pool: pool})
}

// RegisterPortIfLocal attaches the port only when its interface is local
// to this node per nicNode (or has no entry there). Returns whether the
// port was registered. Callers that resolve nodes centrally use
// RegisterPort directly instead.
func (n *NumaNode) RegisterPortIfLocal(spec port.Spec, device kbd.Device, extract kbd.ExtractFunc, pool *descriptor.Pool, nicNode map[string]int) bool {
	if !n.IsLocalNIC(spec.IfName, nicNode) {
		return false
	}
	n.RegisterPort(spec, device, extract, pool)
	return true
}

// IsLocalNIC reports whether ifname resolves (per nicNode) to this node.
// An interface with no entry in the map is accepted, so hardware on hosts
// without PCI-to-NUMA visibility is not stranded.
func (n *NumaNode) IsLocalNIC(ifname string, nicNode map[string]int) bool {
	node, ok := nicNode[ifname]
	if !ok {
		return true
	}
	return node == n.ID
}

// CoreMask renders this node's local cores as a DPDK-EAL-style hex bitmask.
func (n *NumaNode) CoreMask() string {
	var mask uint64
	for _, id := range n.LocalCores {
		if id < 64 {
			mask |= 1 << uint(id)
		}
	}
	return "0x" + strconv.FormatUint(mask, 16)
}

// EALArgs derives this node's EAL command line via port.EALArgs, using its
// own core mask.
func (n *NumaNode) EALArgs(cfg port.Config, socketMemCSV string) []string {
	return port.EALArgs(n.CoreMask(), cfg, socketMemCSV)
}

// StartWorkers spins up one worker goroutine per (port, queue) registered
// on this node, round-robin assigning queues to local cores: queue q runs
// on LocalCores[q % len(LocalCores)]. Returns AlreadyRunning if workers are
// already active, or NoCores if the node has no usable local cores.
func (n *NumaNode) StartWorkers(handler worker.Handler, burstSize int) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateRunning {
		return errs.Newf(errs.KindAlreadyRunning, "numa node %d already has running workers", n.ID).
			WithContext("node", n.ID)
	}
	if len(n.LocalCores) == 0 {
		return errs.Newf(errs.KindNoCores, "numa node %d has no usable local cores", n.ID).
			WithContext("node", n.ID)
	}

	running := &atomic.Bool{}
	running.Store(true)
	n.running = running

	var workers []*worker.Worker
	for _, pb := range n.ports {
		for q := uint16(0); q < pb.spec.NumRxQueues; q++ {
			core := n.LocalCores[int(q)%len(n.LocalCores)]
			w := worker.New(worker.Config{
				PortID:    pb.spec.PortID,
				QueueID:   q,
				CoreID:    core,
				NumaNode:  n.ID,
				Device:    pb.device,
				Extract:   pb.extract,
				Pool:      pb.pool,
				Handler:   handler,
				Allocator: n.Allocator,
				BurstSize: burstSize,
				Running:   running,
				Metrics:   n.Metrics,
			})
			w.Start()
			workers = append(workers, w)
		}
	}

	n.workers = workers
	n.state = StateRunning
	return nil
}

// StopWorkers signals every worker on this node to stop and joins them in
// LIFO order (last started, first joined). Idempotent: calling it when no
// workers are running is a no-op.
func (n *NumaNode) StopWorkers() {
	n.mu.Lock()
	if n.state != StateRunning {
		n.mu.Unlock()
		return
	}
	n.state = StateStopping
	running := n.running
	workers := n.workers
	n.mu.Unlock()

	if running != nil {
		running.Store(false)
	}
	for i := len(workers) - 1; i >= 0; i-- {
		workers[i].Join()
	}

	n.mu.Lock()
	n.workers = nil
	n.running = nil
	n.state = StateIdle
	n.mu.Unlock()
}
