// Package handler implements the ChatMesh HTTP API.
//
// Every JSON response uses the Response envelope. Routes that act on
// behalf of a user expect the SessionAuth middleware to have put the
// validated session on the request context (see WithSession).
package handler
