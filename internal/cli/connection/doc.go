// Package connection provides the HTTP client chatmesh-cli uses to talk
// to a chatmesh-server instance.
package connection
