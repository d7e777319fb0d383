// Package api provides the HTTP REST API and WebSocket server for SpoolDock.
//
// It exposes the spool catalogue, printer registry and live fleet state to
// user interfaces (web dashboard, slicer plugins) and relays printer
// telemetry to WebSocket subscribers in real time.
//
// The server follows the same lifecycle pattern as the infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
