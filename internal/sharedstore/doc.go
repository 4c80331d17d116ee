// Package sharedstore defines the cluster-wide coordination store every
// ChatMesh instance talks to.
//
// A Store bundles four primitives:
//
//   - byte values with a per-key TTL, including an atomic compare-and-delete
//   - named locks with a bounded wait and an auto-expiring lease
//   - per-key rate limiters that draw permits atomically
//   - topic based publish/subscribe
//
// The redis subpackage is the production backend. The memory subpackage
// serves single-node deployments and tests; it gives the same guarantees
// within one process.
package sharedstore
