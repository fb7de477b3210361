// Package api hosts the optional ops HTTP server that runs next to a sweep.
// Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/sweep/progress for the live in-process progress snapshot.
//   - GET /v1/sweep/status for the progress keys persisted in Postgres.
package api
