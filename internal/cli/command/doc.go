// Package command provides the chatmesh-cli command tree.
//
// Commands are defined with urfave/cli/v2:
//
//   - root.go: the App, global flags and the shared client
//   - session.go: session create, validate, touch and remove
//   - system.go: health and readiness checks
//
// Every command follows the same pattern: parse flags, call the HTTP API,
// and print the result with the selected output format.
package command
