// File: descriptor/pool.go
// Author: momentics <momentics@gmail.com>
//
// Bounded lock-free MPMC pool of descriptors, seeded full at construction,
// with optional NUMA-local backing memory.

package descriptor

import (
	"log"
	"sync/atomic"

	"github.com/kbdingest/engine/numa"
)

// OverflowPolicy selects what Acquire does when the pool is empty.
// Default is OverflowAlloc; a deployment that would rather drop than
// allocate under sustained overload selects OverflowDrop.
type OverflowPolicy int

const (
	// OverflowAlloc constructs a fresh default Descriptor when the pool is
	// empty, keeping the hot path forward-progressing under load.
	OverflowAlloc OverflowPolicy = iota
	// OverflowDrop returns nil instead of allocating; callers must handle it.
	OverflowDrop
)

const cacheLinePad = 64

type cell struct {
	sequence atomic.Uint64
	data     *Descriptor
}

// Pool is a preallocated, bounded, lock-free MPMC queue of *Descriptor,
// adapted from this codebase's Vyukov-style sequence-numbered ring. Backing
// memory for the descriptors themselves is node-local when a NUMA
// allocator and node are supplied and available.
type Pool struct {
	head uint64
	_    [cacheLinePad]byte
	tail uint64
	_    [cacheLinePad]byte

	mask  uint64
	cells []cell

	overflow OverflowPolicy

	warnEvery   uint32
	overflowHit atomic.Uint32
	dropHit     atomic.Uint32
}

// New creates a pool of the given capacity (rounded up to a power of two).
// If node >= 0 and alloc is non-nil and reports availability, the pool
// allocates one contiguous node-local block sized to hold capacity
// descriptors; otherwise it uses ordinary allocation. A warning is logged
// only when node-local allocation was attempted and failed.
func New(capacity int, node int, alloc numa.Allocator) *Pool {
	if capacity < 2 {
		capacity = 2
	}
	size := 1
	for size < capacity {
		size <<= 1
	}

	descs := allocDescriptors(size, node, alloc)

	p := &Pool{
		mask:     uint64(size - 1),
		cells:    make([]cell, size),
		overflow: OverflowAlloc,
	}
	// Seed the queue fully populated with descriptors: this is the state
	// the ring would reach after `size` successful Releases starting from
	// empty, so Acquire can immediately dequeue every slot in order.
	for i := range p.cells {
		p.cells[i].data = descs[i]
		p.cells[i].sequence.Store(uint64(i) + 1)
	}
	p.tail = uint64(size)
	return p
}

func allocDescriptors(n, node int, alloc numa.Allocator) []*Descriptor {
	out := make([]*Descriptor, n)
	if node >= 0 && alloc != nil && alloc.Available() {
		// One contiguous node-local block, one cache-line-aligned slot per
		// descriptor so two workers never share a line.
		stride := (sizeOfDescriptor() + cacheLinePad - 1) / cacheLinePad * cacheLinePad
		mem, ok := alloc.AllocOnNode(stride*n, node)
		if ok {
			for i := 0; i < n; i++ {
				out[i] = (*Descriptor)(ptrAt(mem, i*stride))
			}
			return out
		}
		log.Printf("descriptor: NUMA allocation on node %d failed, falling back to ordinary allocation", node)
	}
	for i := range out {
		out[i] = &Descriptor{}
	}
	return out
}

// SetOverflowPolicy configures the overflow behavior; must be called
// before the pool is shared across goroutines.
func (p *Pool) SetOverflowPolicy(policy OverflowPolicy) {
	p.overflow = policy
}

// Cap returns the pool's fixed capacity.
func (p *Pool) Cap() int {
	return len(p.cells)
}

// Len returns the approximate number of descriptors currently inside the
// pool (i.e. not held by a worker). Advisory only under concurrent use.
func (p *Pool) Len() int {
	tail := atomic.LoadUint64(&p.tail)
	head := atomic.LoadUint64(&p.head)
	if tail < head {
		return 0
	}
	return int(tail - head)
}

// Acquire performs a non-blocking pop. If the queue is empty, it applies
// the configured OverflowPolicy: OverflowAlloc returns a fresh default
// Descriptor (and counts/logs the event, sampled); OverflowDrop returns nil.
func (p *Pool) Acquire() *Descriptor {
	for {
		head := atomic.LoadUint64(&p.head)
		index := head & p.mask
		c := &p.cells[index]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(head+1)

		if dif == 0 {
			if atomic.CompareAndSwapUint64(&p.head, head, head+1) {
				d := c.data
				c.sequence.Store(head + p.mask + 1)
				return d
			}
		} else if dif < 0 {
			return p.onEmpty()
		}
		// else: head moved, retry
	}
}

func (p *Pool) onEmpty() *Descriptor {
	hit := p.overflowHit.Add(1)
	if p.overflow == OverflowDrop {
		if hit%sampleEvery(1) == 0 {
			log.Printf("descriptor: pool empty, overflow policy is drop")
		}
		return nil
	}
	if hit%sampleEvery(100) == 0 {
		log.Printf("descriptor: pool empty, allocating overflow descriptor (count=%d)", hit)
	}
	return &Descriptor{}
}

func sampleEvery(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	return n
}

// Release resets desc and performs a non-blocking push. If the queue is
// full (should not happen in a balanced system), the descriptor is dropped
// — the overflow path it came from already recorded the imbalance.
func (p *Pool) Release(desc *Descriptor) {
	if desc == nil {
		return
	}
	desc.Reset()

	for {
		tail := atomic.LoadUint64(&p.tail)
		index := tail & p.mask
		c := &p.cells[index]
		seq := c.sequence.Load()
		dif := int64(seq) - int64(tail)

		if dif == 0 {
			if atomic.CompareAndSwapUint64(&p.tail, tail, tail+1) {
				c.data = desc
				c.sequence.Store(tail + 1)
				return
			}
		} else if dif < 0 {
			hit := p.dropHit.Add(1)
			if hit%sampleEvery(100) == 0 {
				log.Printf("descriptor: pool full, dropping released descriptor (count=%d)", hit)
			}
			return
		}
		// else: tail moved, retry
	}
}
