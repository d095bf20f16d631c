//go:build linux
// +build linux

// File: numa/numa_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux NUMA allocator backed by libnuma via CGO: the
// numa_alloc_onnode/numa_free/numa_run_on_node/numa_node_to_cpus surface.

package numa

/*
#cgo LDFLAGS: -lnuma
#include <numa.h>
#include <stdlib.h>
#include <string.h>

static void *go_numa_alloc_onnode(size_t size, int node) {
	return numa_alloc_onnode(size, node);
}
static void go_numa_free(void *start, size_t size) {
	numa_free(start, size);
}
static int go_numa_node_to_cpus(int node, unsigned long *mask, int maskbytes) {
	return numa_node_to_cpus(node, mask, maskbytes);
}
*/
import "C"

import (
	"fmt"
	"unsafe"
)

type linuxAllocator struct{}

func newPlatformAllocator() Allocator {
	return &linuxAllocator{}
}

func (l *linuxAllocator) Available() bool {
	return C.numa_available() >= 0
}

func (l *linuxAllocator) NumNodes() int {
	if !l.Available() {
		return 1
	}
	return int(C.numa_max_node()) + 1
}

func (l *linuxAllocator) NodeCPUs(node int) []int {
	if !l.Available() {
		return nil
	}
	maxCPUs := 1024
	wordBits := 8 * int(unsafe.Sizeof(C.ulong(0)))
	maskWords := (maxCPUs + wordBits - 1) / wordBits
	mask := make([]C.ulong, maskWords)

	ret := C.go_numa_node_to_cpus(C.int(node), (*C.ulong)(unsafe.Pointer(&mask[0])), C.int(maskWords*int(unsafe.Sizeof(C.ulong(0)))))
	if ret != 0 {
		return nil
	}

	var cpus []int
	for i := 0; i < maxCPUs; i++ {
		word := i / wordBits
		bit := uint(i % wordBits)
		if word < len(mask) && mask[word]&(1<<bit) != 0 {
			cpus = append(cpus, i)
		}
	}
	return cpus
}

func (l *linuxAllocator) AllocOnNode(size, node int) ([]byte, bool) {
	if !l.Available() || node < 0 {
		return make([]byte, size), false
	}
	ptr := C.go_numa_alloc_onnode(C.size_t(size), C.int(node))
	if ptr == nil {
		return make([]byte, size), false
	}
	C.memset(ptr, 0, C.size_t(size))
	return unsafe.Slice((*byte)(ptr), size), true
}

func (l *linuxAllocator) Free(mem []byte) {
	if len(mem) == 0 {
		return
	}
	// Only numa-allocated slices carry a cgo-owned backing array; ordinary
	// make()-backed fallbacks belong to the Go GC. No check is made here:
	// mem is always passed to numa_free, so callers must only pass slices
	// returned by AllocOnNode with ok=true.
	C.go_numa_free(unsafe.Pointer(&mem[0]), C.size_t(len(mem)))
}

func (l *linuxAllocator) BindThreadToNode(node int) error {
	if !l.Available() {
		return fmt.Errorf("numa: not available")
	}
	ret := C.numa_run_on_node(C.int(node))
	if ret != 0 {
		return fmt.Errorf("numa: numa_run_on_node(%d) failed", node)
	}
	return nil
}
