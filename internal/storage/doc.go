// Package storage persists chat messages and file metadata in an embedded
// Badger database.
//
// Messages are stored as JSON under "msg/<id>" and file metadata under
// "file/<id>". Read receipts for many messages are written in a single
// transaction so a receipt batch is applied entirely or not at all.
//
// The database runs a value-log GC loop in the background and can publish
// its size to Prometheus.
package storage
