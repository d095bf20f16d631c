// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A small fixed-size worker pool (Executor/ThreadPool) used by the NUMA
// manager to fan out per-node KBD setup work concurrently. CPU/NUMA
// pinning and the lock-free descriptor ring live in their own top-level
// packages (affinity, numa, descriptor); this package only covers generic
// task dispatch.
package concurrency
