// Package api documents the arpublish HTTP API. Handlers live in api/handlers.
//
// # API Overview
//
// The publish API (arpublish serve) exposes:
//   - POST   /api/v1/publish      start an export-and-publish cycle (202, or 409 while busy)
//   - GET    /api/v1/status       controller state, strategy and AR capability
//   - GET    /api/v1/subjects     list loaded subjects
//   - PUT    /api/v1/subjects     replace loaded subjects
//   - DELETE /api/v1/subjects     unload all subjects
//   - GET    /api/v1/events       WebSocket stream of presenter events
//   - POST   /api/v1/preview      host the AR format under a temporary handle
//   - GET    /preview/{handle}    serve a preview handle
//   - GET    /health, /healthz, /ready, /version
//
// The reference relay (arpublish relay) exposes:
//   - GET  /api/token            single-use upload token
//   - POST /api/upload           JSON (base64) or multipart model upload
//   - GET  /models/{name}        stored model bytes
//   - GET  /ar/{shareId}         viewer page with Quick Look link
//
// # Authentication
//
// When server.api_keys is configured, every publish API endpoint except the
// health and version routes requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// Browsers cannot set headers on WebSocket upgrades, so /api/v1/events also
// accepts ?api_key=.
//
// # Responses
//
// JSON responses share one envelope:
//
//	{"success": true, "data": {...}, "timestamp": "..."}
//	{"success": false, "error": {"code": "BUSY", "message": "..."}, "timestamp": "..."}
//
// Prometheus metrics are served on the separate metrics port at /metrics.
package api
