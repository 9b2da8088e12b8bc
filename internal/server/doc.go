// Package server exposes the watcher's status over HTTP.
//
// Routes:
//
//   - GET /api/status: latest scan outcome per facility as JSON
//   - GET /api/sse: Server-Sent Events stream of scan outcomes
//   - GET /healthz: liveness probe
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled, giving in-flight requests five seconds.
package server
