// File: topology/cpu.go
// Author: momentics <momentics@gmail.com>
//
// CPU topology discovery: logical/physical core maps, socket maps, thread
// siblings, and the primary-core filter the worker placement relies on.

package topology

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kbdingest/engine/errs"
)

// SysfsRoot is the root the probe reads sysfs trees under. Tests override
// it to point at a fixture tree; production code never changes it.
var SysfsRoot = "/"

// CpuTopology is a snapshot of the host's logical/physical CPU layout.
type CpuTopology struct {
	TotalLogicalCores int
	PhysicalCores     int
	Sockets           int

	LogicalToPhysical map[int]int
	LogicalToSocket   map[int]int
	PhysicalToLogical map[int][]int // sorted ascending
	SocketToLogical   map[int][]int // sorted ascending
}

// DiscoverCPU scans the CPU sysfs tree. Individual per-core parse failures
// default the affected value to 0 and continue; the snapshot stays valid,
// just less informative. A missing tree is fatal (TopologyUnavailable).
func DiscoverCPU() (*CpuTopology, error) {
	cpuRoot := filepath.Join(SysfsRoot, "sys/devices/system/cpu")
	entries, err := os.ReadDir(cpuRoot)
	if err != nil {
		return nil, errs.Newf(errs.KindTopologyUnavailable, "cpu sysfs tree unavailable: %v", err)
	}

	t := &CpuTopology{
		LogicalToPhysical: make(map[int]int),
		LogicalToSocket:   make(map[int]int),
		PhysicalToLogical: make(map[int][]int),
		SocketToLogical:   make(map[int][]int),
	}

	physicalSet := make(map[int]struct{})
	socketSet := make(map[int]struct{})

	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") {
			continue
		}
		idxStr := strings.TrimPrefix(name, "cpu")
		cpuID, err := strconv.Atoi(idxStr)
		if err != nil {
			continue // e.g. cpufreq, cpuidle directories
		}
		t.TotalLogicalCores++

		topoDir := filepath.Join(cpuRoot, name, "topology")

		coreID := readIntFile(filepath.Join(topoDir, "core_id"), 0)
		t.LogicalToPhysical[cpuID] = coreID
		physicalSet[coreID] = struct{}{}

		socketID := readIntFile(filepath.Join(topoDir, "physical_package_id"), 0)
		t.LogicalToSocket[cpuID] = socketID
		socketSet[socketID] = struct{}{}
		t.SocketToLogical[socketID] = append(t.SocketToLogical[socketID], cpuID)

		siblings := ParseCPUList(readFirstLine(filepath.Join(topoDir, "thread_siblings_list")))
		if len(siblings) > 0 {
			t.PhysicalToLogical[coreID] = siblings
		} else {
			t.PhysicalToLogical[coreID] = append(t.PhysicalToLogical[coreID], cpuID)
		}
	}

	t.PhysicalCores = len(physicalSet)
	t.Sockets = len(socketSet)

	for k, v := range t.PhysicalToLogical {
		sorted := append([]int(nil), v...)
		sort.Ints(sorted)
		t.PhysicalToLogical[k] = sorted
	}
	for k, v := range t.SocketToLogical {
		sorted := append([]int(nil), v...)
		sort.Ints(sorted)
		t.SocketToLogical[k] = sorted
	}

	return t, nil
}

// PrimaryLogical reports whether cpuID is the numerically smallest sibling
// of its physical core group (used to filter out SMT/HT threads).
func (t *CpuTopology) PrimaryLogical(cpuID int) bool {
	physicalID, ok := t.LogicalToPhysical[cpuID]
	if !ok {
		return true
	}
	siblings, ok := t.PhysicalToLogical[physicalID]
	if !ok || len(siblings) == 0 {
		return true
	}
	return siblings[0] == cpuID
}

// physicalCoreIDs returns, for every physical core group, the smallest
// (primary) logical sibling — i.e. one representative id per physical core.
func (t *CpuTopology) physicalCoreIDs() []int {
	var out []int
	for _, siblings := range t.PhysicalToLogical {
		if len(siblings) == 0 {
			continue
		}
		out = append(out, siblings[0])
	}
	sort.Ints(out)
	return out
}

// FilteredCores returns primary logical cores excluding core 0 (core 0 is
// reserved for OS work and the KBD master lcore).
func (t *CpuTopology) FilteredCores() []int {
	var out []int
	for _, id := range t.physicalCoreIDs() {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}

// CoreMask renders FilteredCores() as a DPDK-EAL-style hex bitmask string.
func (t *CpuTopology) CoreMask() string {
	var mask uint64
	for _, id := range t.FilteredCores() {
		if id < 64 {
			mask |= 1 << uint(id)
		}
	}
	return "0x" + strconv.FormatUint(mask, 16)
}

func readFirstLine(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(b), "\n")
	return strings.TrimSpace(line)
}

func readIntFile(path string, fallback int) int {
	s := readFirstLine(path)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
