// File: descriptor/unsafe.go
// Author: momentics <momentics@gmail.com>

package descriptor

import "unsafe"

func sizeOfDescriptor() int {
	return int(unsafe.Sizeof(Descriptor{}))
}

// ptrAt returns a pointer to the Descriptor-sized slot at byte offset off
// within mem, used to carve a contiguous node-local allocation into
// individually-addressable Descriptor slots.
func ptrAt(mem []byte, off int) unsafe.Pointer {
	return unsafe.Pointer(&mem[off])
}
