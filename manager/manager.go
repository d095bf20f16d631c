// Package manager
// Author: momentics <momentics@gmail.com>
//
// The top-level NUMA manager: discovers topology, assigns ports to their
// local NUMA node, brings up the KBD on every node, and starts or stops
// the worker pools across the whole engine. Shutdown stops every node's
// workers, then stops and closes every port ever configured.
package manager

import (
	"log"
	"sync"

	"github.com/kbdingest/engine/control"
	"github.com/kbdingest/engine/descriptor"
	"github.com/kbdingest/engine/errs"
	"github.com/kbdingest/engine/internal/concurrency"
	"github.com/kbdingest/engine/internal/normalize"
	"github.com/kbdingest/engine/kbd"
	"github.com/kbdingest/engine/numa"
	"github.com/kbdingest/engine/numanode"
	"github.com/kbdingest/engine/port"
	"github.com/kbdingest/engine/topology"
	"github.com/kbdingest/engine/worker"
)

// DefaultDescriptorPoolSize is the per-node descriptor pool capacity used
// when a caller does not specify one.
const DefaultDescriptorPoolSize = 4096

// portSetup records one fully-configured port, consumed by
// StopPacketProcessing's device teardown pass (DevStop/DevClose per port,
// EALCleanup once per distinct device).
type portSetup struct {
	spec   port.Spec
	device kbd.Device
}

// Manager owns the whole engine's topology snapshot, per-node worker pools,
// and the set of configured ports.
type Manager struct {
	mu sync.Mutex

	cpuTopo   *topology.CpuTopology
	numaTopo  *topology.NumaTopology
	allocator numa.Allocator

	nodes  map[int]*numanode.NumaNode
	pools  map[int]*descriptor.Pool
	ports  []portSetup
	running bool

	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
}

// New constructs an uninitialized Manager. Call InitNodes before anything
// else.
func New() *Manager {
	return &Manager{
		nodes:   make(map[int]*numanode.NumaNode),
		pools:   make(map[int]*descriptor.Pool),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
}

// Metrics returns the manager's packet/failure/panic counter registry.
func (m *Manager) Metrics() *control.MetricsRegistry {
	return m.metrics
}

// Debug returns the manager's introspection probe registry.
func (m *Manager) Debug() *control.DebugProbes {
	return m.debug
}

// InitNodes discovers the host's CPU and NUMA topology and constructs one
// NumaNode per discovered NUMA node, pre-populated with its local physical
// cores. A host with no NUMA tree discovers as a single node owning every
// filtered physical core.
func (m *Manager) InitNodes() error {
	cpuTopo, err := topology.DiscoverCPU()
	if err != nil {
		return err
	}
	numaTopo, err := topology.DiscoverNUMA()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuTopo = cpuTopo
	m.numaTopo = numaTopo
	m.allocator = numa.New()

	for node := 0; node < numaTopo.NumNodes; node++ {
		cores := numaTopo.NodePhysicalCores(node, cpuTopo)
		if node == 0 && len(numaTopo.NodeCores) == 0 {
			// No NUMA tree at all: fall back to every filtered physical core.
			cores = cpuTopo.FilteredCores()
		}
		m.nodes[node] = numanode.New(node, cores, m.allocator).WithMetrics(m.metrics)
	}

	m.debug.RegisterProbe("topology.numa_nodes", func() any { return numaTopo.NumNodes })
	m.debug.RegisterProbe("topology.logical_cores", func() any { return cpuTopo.TotalLogicalCores })
	m.debug.RegisterProbe("topology.sockets", func() any { return cpuTopo.Sockets })
	control.RegisterPlatformProbes(m.debug)
	return nil
}

// DistributeInterfaces resolves each port's NumaNode field using the
// discovered NIC-to-node mapping. A port whose NumaNode is already >= 0 is
// not re-resolved, but is still clamped: a node id outside the discovered
// range becomes node 0. A port whose NIC resolves to no known node (or has
// no IfName to resolve) defaults to node 0, per this project's unknown-NUMA-
// node policy.
func (m *Manager) DistributeInterfaces(specs []port.Spec) []port.Spec {
	m.mu.Lock()
	numaTopo := m.numaTopo
	m.mu.Unlock()

	numNodes := 1
	if numaTopo != nil {
		numNodes = numaTopo.NumNodes
	}

	out := make([]port.Spec, len(specs))
	for i, spec := range specs {
		if spec.NumaNode < 0 && numaTopo != nil {
			if node, ok := numaTopo.NicNodeID(spec.IfName); ok {
				spec.NumaNode = node
			}
		}
		spec.NumaNode = normalize.NUMANode(spec.NumaNode, numNodes)
		out[i] = spec
	}
	return out
}

// PortBinding is one port's already-built runtime dependencies: the KBD
// device it will be served by, and the packet extraction function its
// workers will call.
type PortBinding struct {
	Spec    port.Spec
	Device  kbd.Device
	Extract kbd.ExtractFunc
}

// InitKBD resolves every binding's NUMA node, then for each node runs its
// EAL init with node-specific arguments before any of its ports run
// port setup, exactly as CreateMempool/Configure assume an
// already-initialized EAL. Per-port setup runs concurrently across a fixed
// worker pool (github.com/eapache/queue backed), one submission per port,
// so bring-up latency is bounded by the slowest single port rather than the
// sum of all of them; the per-node EAL init that guards each group is not
// parallelized across nodes, since it must complete before its own ports'
// setup starts.
func (m *Manager) InitKBD(bindings []PortBinding, cfg port.Config, poolSize int) error {
	if poolSize <= 0 {
		poolSize = DefaultDescriptorPoolSize
	}

	specs := make([]port.Spec, len(bindings))
	for i, b := range bindings {
		specs[i] = b.Spec
	}
	resolved := m.DistributeInterfaces(specs)

	byNode := make(map[int][]int)
	nodeOrder := make([]int, 0)
	for i, spec := range resolved {
		if _, ok := byNode[spec.NumaNode]; !ok {
			nodeOrder = append(nodeOrder, spec.NumaNode)
		}
		byNode[spec.NumaNode] = append(byNode[spec.NumaNode], i)
	}

	fanout := concurrency.NewThreadPool(max(1, len(bindings)), -1)
	defer fanout.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for _, nodeID := range nodeOrder {
		idxs := byNode[nodeID]

		// One EAL init per node, using the first bound port's device
		// as the EAL entry point, before any port on this node is touched.
		leadDevice := bindings[idxs[0]].Device
		ealArgs := m.nodeEALArgs(nodeID, cfg)
		if err := leadDevice.EALInit(ealArgs); err != nil {
			record(errs.PortConfigFailed("eal_init", err).WithContext("node", nodeID))
			continue
		}

		for _, i := range idxs {
			spec := resolved[i]
			device := bindings[i].Device
			extract := bindings[i].Extract

			wg.Add(1)
			err := fanout.Submit(func() {
				defer wg.Done()
				record(m.initOnePort(spec, device, extract, cfg, poolSize))
			})
			if err != nil {
				wg.Done()
				record(err)
			}
		}
	}
	wg.Wait()
	return firstErr
}

// nodeEALArgs derives node's EAL command line, using the node's real
// core mask when its NumaNode is already known to the manager, or an
// empty-mask fallback for a node id InitNodes never discovered.
func (m *Manager) nodeEALArgs(nodeID int, cfg port.Config) []string {
	m.mu.Lock()
	n, ok := m.nodes[nodeID]
	numaTopo := m.numaTopo
	m.mu.Unlock()

	numNodes := 1
	if numaTopo != nil {
		numNodes = numaTopo.NumNodes
	}
	var quota uint32
	if nodeID >= 0 && nodeID < len(cfg.SocketMemMB) {
		quota = cfg.SocketMemMB[nodeID]
	}
	socketMemCSV := port.BuildSocketMemCSV(numNodes, nodeID, quota)

	if ok {
		return n.EALArgs(cfg, socketMemCSV)
	}
	return port.EALArgs("0x0", cfg, socketMemCSV)
}

func (m *Manager) initOnePort(spec port.Spec, device kbd.Device, extract kbd.ExtractFunc, cfg port.Config, poolSize int) error {
	mempool, err := port.CreateMempool(device, spec.NumaNode, cfg)
	if err != nil {
		return err
	}
	if err := port.Configure(device, spec, cfg, mempool); err != nil {
		// A promisc_enable failure leaves the device started; record it so
		// StopPacketProcessing still stops and closes it.
		if e, ok := err.(*errs.Error); ok && e.Context["step"] == "promisc_enable" {
			m.mu.Lock()
			m.ports = append(m.ports, portSetup{spec: spec, device: device})
			m.mu.Unlock()
		}
		return err
	}

	m.mu.Lock()
	dpool, ok := m.pools[spec.NumaNode]
	if !ok {
		dpool = descriptor.New(poolSize, spec.NumaNode, m.allocator)
		m.pools[spec.NumaNode] = dpool
	}
	node, ok := m.nodes[spec.NumaNode]
	if !ok {
		node = numanode.New(spec.NumaNode, nil, m.allocator).WithMetrics(m.metrics)
		m.nodes[spec.NumaNode] = node
	}
	m.ports = append(m.ports, portSetup{spec: spec, device: device})
	m.mu.Unlock()

	node.RegisterPort(spec, device, extract, dpool)
	return nil
}

// StartPacketProcessing starts every node's worker pool. Nodes with no
// local cores are skipped without error, so ports registered on such a
// node get no workers. If a node fails to start (AlreadyRunning), the nodes
// already started are stopped again and the error is returned; no partial
// processing state is left.
func (m *Manager) StartPacketProcessing(handler worker.Handler, burstSize int) error {
	m.mu.Lock()
	nodes := make([]*numanode.NumaNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.Unlock()

	started := make([]*numanode.NumaNode, 0, len(nodes))
	for _, n := range nodes {
		if len(n.LocalCores) == 0 {
			continue // nodes with no registered cores have nothing to start
		}
		if err := n.StartWorkers(handler, burstSize); err != nil {
			for _, s := range started {
				s.StopWorkers()
			}
			return err
		}
		started = append(started, n)
	}

	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
	return nil
}

// StopPacketProcessing stops every node's worker pool, then stops and
// closes every port that was ever configured via InitKBD, then releases
// the EAL once per distinct device. Idempotent: calling it when nothing is
// running, or more than once, is a no-op — the second call finds no
// workers and no ports left to tear down.
func (m *Manager) StopPacketProcessing() {
	m.mu.Lock()
	nodes := make([]*numanode.NumaNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	ports := m.ports
	m.ports = nil
	m.running = false
	m.mu.Unlock()

	for _, n := range nodes {
		n.StopWorkers()
	}

	seen := make(map[kbd.Device]bool, len(ports))
	for _, p := range ports {
		if err := p.device.DevStop(p.spec.PortID); err != nil {
			log.Printf("manager: DevStop(port=%d) failed: %v", p.spec.PortID, err)
		}
		if err := p.device.DevClose(p.spec.PortID); err != nil {
			log.Printf("manager: DevClose(port=%d) failed: %v", p.spec.PortID, err)
		}
		seen[p.device] = true
	}
	for dev := range seen {
		dev.EALCleanup()
	}
}

// Nodes returns the ids of every NUMA node the manager currently tracks.
func (m *Manager) Nodes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	return ids
}
