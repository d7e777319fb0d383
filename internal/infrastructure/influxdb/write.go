package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelemetry writes a single printer measurement.
//
// This is the primary method for recording decoded telemetry. The write
// is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteTelemetry("01S00C000000001", "print_progress", 42)
//	client.WriteTelemetry("01S00C000000001", "layer_num", 118)
func (c *Client) WriteTelemetry(serial string, measurement string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"printer_telemetry",
		map[string]string{
			"serial":      serial,
			"measurement": measurement,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteEnvironment writes one AMS unit's humidity and temperature
// readings. Pass nil for readings the unit did not report.
func (c *Client) WriteEnvironment(serial string, amsID int, humidity *int, temperature *float64) {
	if !c.IsConnected() {
		return
	}
	if humidity == nil && temperature == nil {
		return
	}

	fields := map[string]interface{}{}
	if humidity != nil {
		fields["humidity"] = float64(*humidity)
	}
	if temperature != nil {
		fields["temperature"] = *temperature
	}

	point := write.NewPoint(
		"ams_environment",
		map[string]string{
			"serial": serial,
			"ams_id": strconv.Itoa(amsID),
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
