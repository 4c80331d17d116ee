// Package service provides the coordination services of ChatMesh.
//
// Services hold no cross-request state of their own. Everything that must
// be consistent across instances lives in the shared store, and every call
// re-reads it. Storage and event publishing are consumed through the small
// interfaces declared here, so tests can substitute hand-written fakes.
//
// This package contains:
//
//   - SessionCoordinator: one live session per user, lock-guarded creation
//   - RateLimiter: cluster-wide per-client request limits
//   - ReadStatusService: bulk read receipts
//   - MessageService: send, react and mark-read flows tying the above to
//     storage and the event bus
package service
