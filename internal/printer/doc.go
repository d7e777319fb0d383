// Package printer implements the live session layer for Bambu Lab printers.
//
// Each physical printer gets one Connection: an authenticated TLS MQTT
// session straight to the device, a telemetry decoder that merges the
// printer's delta reports into a PrinterState, a per-connection calibration
// cache, and a staged-assignment store that binds filament spools to AMS
// slots before the spool is physically loaded. The Fleet owns the set of
// Connections and fans state changes out to a single subscriber.
//
// # Wire protocol
//
// The device hosts its own broker on port 8883 with a self-signed
// certificate. We authenticate as user "bblp" with the per-device access
// code, subscribe to device/<serial>/report, and publish commands on
// device/<serial>/request. Reports after the initial pushall are deltas:
// absent fields mean "unchanged", never "cleared".
//
// # Concurrency
//
// Telemetry arrives on paho's network goroutine; API handlers read and
// write the same connection from their own goroutines. Every Connection
// serialises access to its state, calibration table, and assignment map
// behind a single mutex. Locks are never shared between connections, so a
// stuck decode on one printer cannot stall another. State reads return
// deep copies.
//
// Commands are fire-and-forget: a true return means the transport accepted
// the publish, not that the printer applied it. Confirmation, if any,
// arrives later as ordinary telemetry.
package printer
