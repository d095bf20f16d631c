// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection layer: a thread-safe counter
// registry workers and the manager report into, and a named-probe
// registry the manager and platform-specific files register callbacks
// against for on-demand state dumps.
//
// Provides concurrent-safe state handling primitives including:
//   - Metrics telemetry: dynamic counter registration and snapshotting
//   - Debug hooks and probe registration
//   - Platform-specific probes (cpus, ...), build-tag-partitioned per OS
//
// This package carries no configuration store or hot-reload machinery:
// PortConfig in this engine is immutable once resolved.
package control
