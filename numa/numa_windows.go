//go:build windows
// +build windows

// File: numa/numa_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows NUMA allocator backed by VirtualAllocExNuma / GetNumaHighestNodeNumber.

package numa

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32                     = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocExNuma       = kernel32.NewProc("VirtualAllocExNuma")
	procVirtualFreeEx            = kernel32.NewProc("VirtualFreeEx")
	procGetNumaHighestNodeNumber = kernel32.NewProc("GetNumaHighestNodeNumber")
)

type windowsAllocator struct{}

func newPlatformAllocator() Allocator {
	return &windowsAllocator{}
}

func (w *windowsAllocator) Available() bool {
	var highest uint32
	ret, _, _ := procGetNumaHighestNodeNumber.Call(uintptr(unsafe.Pointer(&highest)))
	return ret != 0
}

func (w *windowsAllocator) NumNodes() int {
	var highest uint32
	ret, _, _ := procGetNumaHighestNodeNumber.Call(uintptr(unsafe.Pointer(&highest)))
	if ret == 0 {
		return 1
	}
	return int(highest) + 1
}

func (w *windowsAllocator) NodeCPUs(node int) []int {
	// Windows processor-group/NUMA CPU enumeration requires
	// GetNumaNodeProcessorMaskEx, out of scope for this capability's
	// minimal surface; callers fall back to the CPU topology probe.
	return nil
}

func (w *windowsAllocator) AllocOnNode(size, node int) ([]byte, bool) {
	hProc := windows.CurrentProcess()
	addr, _, _ := procVirtualAllocExNuma.Call(
		uintptr(hProc),
		0,
		uintptr(size),
		uintptr(windows.MEM_RESERVE|windows.MEM_COMMIT),
		uintptr(windows.PAGE_READWRITE),
		uintptr(node),
	)
	if addr == 0 {
		return make([]byte, size), false
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), true
}

func (w *windowsAllocator) Free(mem []byte) {
	if len(mem) == 0 {
		return
	}
	hProc := windows.CurrentProcess()
	procVirtualFreeEx.Call(uintptr(hProc), uintptr(unsafe.Pointer(&mem[0])), 0, uintptr(windows.MEM_RELEASE))
}

func (w *windowsAllocator) BindThreadToNode(node int) error {
	// Windows binds memory allocation per-allocation (VirtualAllocExNuma)
	// rather than per-thread; there is no direct equivalent of
	// numa_run_on_node, so this binds nothing: it only reports an error
	// when NUMA is unavailable.
	if !w.Available() {
		return fmt.Errorf("numa: not available")
	}
	return nil
}
