// Package cmap provides a concurrent map for the in-process shared store.
//
// Keys are strings spread over a power-of-two number of shards by their
// murmur3 hash. Each shard is guarded by its own RWMutex, so operations on
// keys in different shards never contend.
//
// Compute is the building block for atomic read-modify-write sequences
// (set-if-absent, compare-and-delete, counters): the callback runs while the
// shard lock is held.
//
// Usage:
//
//	m := cmap.New[*entry]()
//	m.Set("session:user:42", e)
//	e, ok := m.Get("session:user:42")
package cmap
