// Package api hosts the status HTTP server used in daemon mode. Routes:
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/runs/latest for the summary of the most recent run.
//   - POST /v1/runs to start a run on demand (409 while one is active).
//
// The /v1 routes require an X-API-Key header when auth is enabled.
package api
