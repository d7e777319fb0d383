// Package influxdb provides time-series storage for printer telemetry.
//
// It wraps the InfluxDB v2 Go client with connection management, batched
// non-blocking writes, and health monitoring. Points are buffered in
// memory and flushed on an interval, so recording a measurement never
// blocks a telemetry decoder.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.WriteTelemetry("01S00C000000001", "print_progress", 42)
//
// Thread Safety: All methods are safe for concurrent use.
package influxdb
