// Package api provides the HTTP REST API and WebSocket event stream for the
// MELCloud bridge.
//
// Characteristic reads and writes go through the request coordinator, so
// concurrent HTTP clients share fetches with MQTT hosts:
//
//	srv, err := api.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
//
// Routes live under /api/v1. Prometheus metrics are served on /metrics.
package api
