// Package topology
// Author: momentics <momentics@gmail.com>
//
// Host CPU and NUMA topology discovery via the sysfs view: the standard
// /sys/devices/system/cpu and /sys/devices/system/node trees.
package topology

import (
	"strconv"
	"strings"
)

// ParseCPUList parses the sysfs cpulist grammar:
//
//	LIST  := RANGE (',' RANGE)*
//	RANGE := INT | INT '-' INT
//
// Integers are decimal; whitespace around tokens is tolerated; invalid
// tokens are silently dropped. Duplicates and ordering from the input are
// preserved by position (this is a total function: it never errors).
func ParseCPUList(s string) []int {
	var out []int
	for _, part := range strings.Split(strings.TrimSpace(s), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.IndexByte(part, '-'); idx >= 0 {
			lo, err1 := strconv.Atoi(strings.TrimSpace(part[:idx]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(part[idx+1:]))
			if err1 != nil || err2 != nil || hi < lo {
				continue
			}
			for i := lo; i <= hi; i++ {
				out = append(out, i)
			}
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
