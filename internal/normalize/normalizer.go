// File: internal/normalize/normalizer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Index normalization for NUMA node and CPU core numbers: an out-of-range
// or unknown value degrades to a safe default (node/core 0) instead of
// propagating into an allocation or affinity call. manager.DistributeInterfaces
// runs every port's NUMA node through NUMANode; CPUIndex has no caller in
// this module.
package normalize

import "log"

// NUMANode clamps requested into [0, maxNodes). A negative requested value,
// or maxNodes < 1 (no discovered nodes), both resolve to node 0 — the
// policy a port's NUMA node falls back to when it cannot be determined
// from NIC topology.
func NUMANode(requested int, maxNodes int) int {
	if maxNodes < 1 {
		return 0
	}
	if requested < 0 || requested >= maxNodes {
		log.Printf("normalize: NUMA node %d out of range [0,%d), falling back to node 0", requested, maxNodes)
		return 0
	}
	return requested
}

// CPUIndex clamps requested into [0, maxCPUs), falling back to 0 the same
// way NUMANode does.
func CPUIndex(requested int, maxCPUs int) int {
	if maxCPUs < 1 {
		return 0
	}
	if requested < 0 || requested >= maxCPUs {
		log.Printf("normalize: CPU index %d out of range [0,%d), falling back to 0", requested, maxCPUs)
		return 0
	}
	return requested
}
