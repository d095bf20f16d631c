//go:build (!linux && !windows) || (linux && !cgo)
// +build !linux,!windows linux,!cgo

// File: numa/numa_stub.go
// Author: momentics <momentics@gmail.com>
//
// No-op NUMA allocator for unsupported platforms and cgo-disabled builds.

package numa

type stubAllocator struct{}

func newPlatformAllocator() Allocator { return &stubAllocator{} }

func (s *stubAllocator) Available() bool                         { return false }
func (s *stubAllocator) NumNodes() int                            { return 1 }
func (s *stubAllocator) NodeCPUs(node int) []int                  { return nil }
func (s *stubAllocator) AllocOnNode(size, node int) ([]byte, bool) { return make([]byte, size), false }
func (s *stubAllocator) Free(mem []byte)                          {}
func (s *stubAllocator) BindThreadToNode(node int) error          { return nil }
