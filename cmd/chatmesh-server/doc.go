// Package main provides the entry point for chatmesh-server.
//
// chatmesh-server runs one ChatMesh instance: the HTTP API, the local
// event stream hub and the broker listener that feeds it. Any number of
// instances can share one Redis for sessions, rate limits and events.
package main
