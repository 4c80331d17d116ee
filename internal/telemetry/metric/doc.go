// Package metric provides Prometheus metrics for ChatMesh.
//
//   - prometheus.go: the Registry with every application collector
//   - collector.go: gauge functions sampled at scrape time
//
// Each Registry owns a private prometheus.Registry, so tests can build as
// many as they like. Metrics are exposed at /metrics by Handler.
package metric
