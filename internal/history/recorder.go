package history

import (
	"strconv"

	"github.com/spooldock/spooldock-core/internal/printer"
)

// TelemetryWriter is the subset of the InfluxDB client the recorder
// needs. *influxdb.Client satisfies it.
type TelemetryWriter interface {
	WriteTelemetry(serial string, measurement string, value float64)
	WriteEnvironment(serial string, amsID int, humidity *int, temperature *float64)
	WritePoint(measurement string, tags map[string]string, fields map[string]interface{})
}

// Recorder flattens printer state snapshots into time-series points.
type Recorder struct {
	writer TelemetryWriter
}

// NewRecorder creates a recorder backed by the given writer. A nil
// writer yields a recorder whose RecordState is a no-op.
func NewRecorder(writer TelemetryWriter) *Recorder {
	return &Recorder{writer: writer}
}

// RecordState writes the numeric telemetry present in state.
//
// Fields the printer has never reported (nil pointers) are skipped, so
// early snapshots produce few points and later deltas fill in the rest.
func (r *Recorder) RecordState(serial string, state *printer.PrinterState) {
	if r == nil || r.writer == nil || state == nil {
		return
	}

	if state.PrintProgress != nil {
		r.writer.WriteTelemetry(serial, "print_progress", float64(*state.PrintProgress))
	}
	if state.LayerNum != nil {
		r.writer.WriteTelemetry(serial, "layer_num", float64(*state.LayerNum))
	}
	if state.TotalLayerNum != nil {
		r.writer.WriteTelemetry(serial, "total_layer_num", float64(*state.TotalLayerNum))
	}

	for _, unit := range state.AmsUnits {
		if unit.Humidity != nil || unit.Temperature != nil {
			r.writer.WriteEnvironment(serial, unit.ID, unit.Humidity, unit.Temperature)
		}
		for _, tray := range unit.Trays {
			if tray.Remain == nil || tray.Empty() {
				continue
			}
			r.writer.WritePoint("filament_remain",
				map[string]string{
					"serial":  serial,
					"ams_id":  strconv.Itoa(tray.AmsID),
					"tray_id": strconv.Itoa(tray.TrayID),
				},
				map[string]interface{}{
					"percent": float64(*tray.Remain),
				},
			)
		}
	}
}
