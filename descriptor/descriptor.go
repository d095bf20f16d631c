// Package descriptor
// Author: momentics <momentics@gmail.com>
//
// Packet-metadata descriptors recycled through a lock-free bounded pool.
// A descriptor is valid only for the duration of a single handler call;
// handlers must not retain one past return.
package descriptor

import "unsafe"

// Descriptor carries zero-copy pointers into the mbuf backing a single
// received packet, laid out field-by-field to keep hot fields (payload
// pointer/length) on the first cache line. While held by a handler,
// MbufPtr is valid and exclusively owned by the current worker; all other
// pointers are live references into that mbuf. DataLen > 0 iff extraction
// succeeded.
type Descriptor struct {
	DataPtr unsafe.Pointer
	DataLen int

	SrcIPPtr unsafe.Pointer
	SrcIPLen int
	DstIPPtr unsafe.Pointer
	DstIPLen int

	SrcPort uint16
	DstPort uint16
	QueueID uint16

	MbufPtr uintptr
}

// Reset clears all pointer and length fields to their defaults, leaving
// the Descriptor ready for reuse. Called by Pool.Release before the
// descriptor is returned to the queue.
func (d *Descriptor) Reset() {
	*d = Descriptor{}
}

// Data returns the payload as a byte slice interior to the owning mbuf.
func (d *Descriptor) Data() []byte {
	if d.DataPtr == nil || d.DataLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(d.DataPtr), d.DataLen)
}

// SrcIP returns the source L3 address as a byte slice (4 or 16 bytes).
func (d *Descriptor) SrcIP() []byte {
	if d.SrcIPPtr == nil || d.SrcIPLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(d.SrcIPPtr), d.SrcIPLen)
}

// DstIP returns the destination L3 address as a byte slice (4 or 16 bytes).
func (d *Descriptor) DstIP() []byte {
	if d.DstIPPtr == nil || d.DstIPLen == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(d.DstIPPtr), d.DstIPLen)
}
