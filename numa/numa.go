// Package numa
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral contract for the NUMA allocator capability consumed by
// the descriptor pool and the per-node worker bootstrap. Platform-specific
// implementations live in numa_linux.go / numa_windows.go / numa_stub.go,
// guarded by build tags, following the same per-platform split the
// affinity package uses.
package numa

// Allocator is the NUMA allocator capability set the engine consumes:
// availability, node enumeration, per-node CPU maps, node-local allocation
// and release, and thread-to-node binding.
type Allocator interface {
	// Available reports whether NUMA support is usable on this host.
	Available() bool

	// NumNodes returns the number of NUMA nodes; 1 when NUMA is unavailable.
	NumNodes() int

	// NodeCPUs returns the logical CPU ids local to node, or nil if unknown.
	NodeCPUs(node int) []int

	// AllocOnNode allocates size bytes bound to node. Falls back to ordinary
	// allocation (reported via ok=false) when node-local allocation is not
	// possible, matching the pool's documented fallback-with-warning policy.
	AllocOnNode(size, node int) (mem []byte, ok bool)

	// Free releases memory obtained from AllocOnNode.
	Free(mem []byte)

	// BindThreadToNode binds the calling OS thread's memory allocation
	// policy to node. Must be called with the OS thread locked
	// (runtime.LockOSThread) to have any lasting effect.
	BindThreadToNode(node int) error
}

// New returns the platform allocator.
func New() Allocator {
	return newPlatformAllocator()
}
