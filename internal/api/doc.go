// Package api hosts the status HTTP server. Notable routes:
//   - GET /healthz and /readyz for health checks.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/profiles lists the configured outlets.
//   - POST /v1/run starts a crawl; GET /v1/run/{run_id} reports its state and
//     POST /v1/run/{run_id}/cancel stops it.
package api
