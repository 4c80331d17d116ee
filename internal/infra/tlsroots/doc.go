// Package tlsroots builds the TLS configurations chatmesh-server uses:
// client settings for the Redis connection, and a reloading key pair for
// serving HTTPS.
package tlsroots
