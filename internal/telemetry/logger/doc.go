// Package logger provides structured logging for ChatMesh.
//
// It wraps log/slog behind a small Logger interface:
//
//   - logger.go: handler construction and the dynamic global level
//   - context.go: request and user id propagation through context.Context
//   - redact.go: masking of session ids and secrets before they reach output
//
// The level can be changed at runtime with SetLevel; the server wires this to
// the config file watcher.
package logger
