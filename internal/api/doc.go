// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/search runs one query and returns its QueryResult.
//   - POST /v1/batch runs a list of queries and returns the BatchResult.
package api
