// Package domain defines the core domain models for ChatMesh.
//
// Domain models are pure value objects and entities without any
// IO dependencies or framework coupling. This package contains:
//
//   - Session: the single live session a user holds across the cluster
//   - Message: chat message with reaction and read-receipt mutation rules
//   - EventType / Envelope: the cross-instance event vocabulary and topic map
//   - RateLimitCheckResult: outcome of a cluster-wide rate check
//   - Errors: domain error definitions with stable codes
package domain
