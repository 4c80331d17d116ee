// Package memory is an in-process sharedstore.Store.
//
// Values, locks and limiters live in sharded maps from pkg/cmap; expired
// entries are treated as absent on read and swept by a background janitor.
// Limiters keep a sliding log of drawn permits, matching the Redis
// backend: a permit counts until a full window has passed since it was
// drawn. Pub/sub fans out to per-subscription buffered channels, each
// drained by its own goroutine; Publish drops rather than waits when a
// queue is full, and rate-limits the warning it logs for that.
//
// Several Store users in one process (for example two simulated instances
// in a test) observe each other exactly as they would through Redis.
package memory
