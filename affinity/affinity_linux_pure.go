//go:build linux && !cgo
// +build linux,!cgo

// File: affinity/affinity_linux_pure.go
// Author: momentics <momentics@gmail.com>
//
// Pure-Go fallback for Linux affinity when CGO is disabled, using the
// sched_setaffinity syscall on the calling thread (tid 0).

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// setAffinityPlatform sets thread affinity to a given CPU for Linux without CGO.
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity failed: %w", err)
	}
	return nil
}
