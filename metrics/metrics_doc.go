// Package metrics exposes a Prometheus /metrics endpoint and the
// counters key-sync handshakes update as they run.
package metrics
