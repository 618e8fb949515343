// Package api hosts the HTTP server, middleware, and read-only handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for a live snapshot of every running stage engine.
//   - GET /v1/cycles and /v1/cycles/{cycle_id} for cycle history via the
//     ProgressRepository interface.
package api
