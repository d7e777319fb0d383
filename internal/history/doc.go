// Package history records decoded printer telemetry into time-series
// storage.
//
// The recorder sits between the fleet's state-change callback and the
// InfluxDB client: each state snapshot is flattened into a handful of
// numeric measurements (print progress, layer counters, AMS humidity
// and temperature, remaining filament) and handed to the batched
// writer. Recording is fire-and-forget; a disabled or unreachable
// store silently drops points.
package history
