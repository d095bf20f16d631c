// File: topology/numa.go
// Author: momentics <momentics@gmail.com>
//
// NUMA topology discovery: per-node cpulists and memory descriptors, and
// the PCI-bus walk that maps network interfaces to their NUMA node.

package topology

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// NumaTopology is a snapshot of the host's NUMA layout.
type NumaTopology struct {
	NumNodes   int
	NodeCores  map[int][]int
	NodeMemory map[int][]string // raw "MemTotal:" lines from meminfo
	DeviceNode map[string]int   // PCI bdf -> node
	NicNode    map[string]int   // interface name -> node
}

// DiscoverNUMA scans the NUMA sysfs tree. Absence of the tree yields a
// single-node topology (node 0, empty core list — callers needing "all
// cores" should fall back to CpuTopology.FilteredCores()).
func DiscoverNUMA() (*NumaTopology, error) {
	t := &NumaTopology{
		NodeCores:  make(map[int][]int),
		NodeMemory: make(map[int][]string),
		DeviceNode: make(map[string]int),
		NicNode:    make(map[string]int),
	}

	nodeRoot := filepath.Join(SysfsRoot, "sys/devices/system/node")
	entries, err := os.ReadDir(nodeRoot)
	if err != nil {
		t.NumNodes = 1
		return t, nil
	}

	nodeIDs := make(map[int]struct{})
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "node") {
			continue
		}
		nodeID, err := strconv.Atoi(strings.TrimPrefix(name, "node"))
		if err != nil {
			continue
		}
		nodeIDs[nodeID] = struct{}{}

		nodeDir := filepath.Join(nodeRoot, name)

		// cpulist: a node present in the tree with an empty cpulist is
		// retained with an empty core set so node IDs stay stable.
		if cpulist := readFirstLine(filepath.Join(nodeDir, "cpulist")); cpulist != "" {
			t.NodeCores[nodeID] = ParseCPUList(cpulist)
		} else {
			t.NodeCores[nodeID] = []int{}
		}

		if b, err := os.ReadFile(filepath.Join(nodeDir, "meminfo")); err == nil {
			var lines []string
			for _, line := range strings.Split(string(b), "\n") {
				if strings.Contains(line, "MemTotal") {
					lines = append(lines, line)
				}
			}
			t.NodeMemory[nodeID] = lines
		}
	}
	t.NumNodes = len(nodeIDs)
	if t.NumNodes == 0 {
		t.NumNodes = 1
	}

	t.loadPCINumaMapping()
	return t, nil
}

// loadPCINumaMapping walks the PCI bus, recording the NUMA node and network
// interface names of every network-class (0x02…) device.
func (t *NumaTopology) loadPCINumaMapping() {
	pciRoot := filepath.Join(SysfsRoot, "sys/bus/pci/devices")
	entries, err := os.ReadDir(pciRoot)
	if err != nil {
		return
	}

	for _, e := range entries {
		bdf := e.Name()
		devDir := filepath.Join(pciRoot, bdf)

		class := readFirstLine(filepath.Join(devDir, "class"))
		if !strings.HasPrefix(class, "0x02") {
			continue
		}

		// A NIC whose PCI entry reports numa_node = -1 is recorded with no
		// node affinity (DeviceNode simply has no entry for it).
		if nodeStr := readFirstLine(filepath.Join(devDir, "numa_node")); nodeStr != "" {
			if nodeID, err := strconv.Atoi(nodeStr); err == nil && nodeID >= 0 {
				t.DeviceNode[bdf] = nodeID
			}
		}

		netDirs, err := os.ReadDir(filepath.Join(devDir, "net"))
		if err != nil {
			continue
		}
		if nodeID, ok := t.DeviceNode[bdf]; ok {
			for _, nd := range netDirs {
				t.NicNode[nd.Name()] = nodeID
			}
		}
	}
}

// NicNodeID returns the NUMA node ifname resolves to, and whether the map
// has an entry for it at all.
func (t *NumaTopology) NicNodeID(ifname string) (int, bool) {
	node, ok := t.NicNode[ifname]
	return node, ok
}

// NodePhysicalCores returns the cores on node that are also primary logical
// cores per cpuTopo, excluding core 0.
func (t *NumaTopology) NodePhysicalCores(node int, cpuTopo *CpuTopology) []int {
	cores, ok := t.NodeCores[node]
	if !ok {
		return nil
	}
	var out []int
	for _, id := range cores {
		if id == 0 {
			continue
		}
		if cpuTopo.PrimaryLogical(id) {
			out = append(out, id)
		}
	}
	return out
}
