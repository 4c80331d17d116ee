// Package httpserver wires the ChatMesh HTTP API: the router, the
// middleware chain and the server lifecycle. Handlers live in the handler
// subpackage.
package httpserver
