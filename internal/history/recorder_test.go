package history

import (
	"testing"

	"github.com/spooldock/spooldock-core/internal/printer"
)

type capturedPoint struct {
	measurement string
	serial      string
	name        string
	value       float64
}

type fakeWriter struct {
	telemetry    []capturedPoint
	environments []capturedPoint
	points       []capturedPoint
}

func (w *fakeWriter) WriteTelemetry(serial, measurement string, value float64) {
	w.telemetry = append(w.telemetry, capturedPoint{serial: serial, name: measurement, value: value})
}

func (w *fakeWriter) WriteEnvironment(serial string, amsID int, humidity *int, temperature *float64) {
	p := capturedPoint{measurement: "ams_environment", serial: serial, name: "ams"}
	if humidity != nil {
		p.value = float64(*humidity)
	}
	w.environments = append(w.environments, p)
}

func (w *fakeWriter) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	p := capturedPoint{measurement: measurement, serial: tags["serial"]}
	if v, ok := fields["percent"].(float64); ok {
		p.value = v
	}
	w.points = append(w.points, p)
}

func intP(v int) *int          { return &v }
func floatP(v float64) *float64 { return &v }
func strP(v string) *string     { return &v }

// ─── RecordState ───────────────────────────────────────────────────

func TestRecordState_WritesReportedFields(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	state := printer.NewPrinterState()
	state.PrintProgress = intP(42)
	state.LayerNum = intP(118)
	state.TotalLayerNum = intP(300)

	r.RecordState("01S00C000000001", state)

	if len(w.telemetry) != 3 {
		t.Fatalf("telemetry points = %d, want 3", len(w.telemetry))
	}
	want := map[string]float64{"print_progress": 42, "layer_num": 118, "total_layer_num": 300}
	for _, p := range w.telemetry {
		if p.serial != "01S00C000000001" {
			t.Errorf("serial = %q", p.serial)
		}
		if want[p.name] != p.value {
			t.Errorf("%s = %v, want %v", p.name, p.value, want[p.name])
		}
	}
}

func TestRecordState_SkipsUnreportedFields(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	r.RecordState("01S00C000000001", printer.NewPrinterState())

	if len(w.telemetry) != 0 || len(w.environments) != 0 || len(w.points) != 0 {
		t.Errorf("empty state produced points: %+v %+v %+v", w.telemetry, w.environments, w.points)
	}
}

func TestRecordState_AmsEnvironmentAndRemain(t *testing.T) {
	w := &fakeWriter{}
	r := NewRecorder(w)

	state := printer.NewPrinterState()
	state.AmsUnits = []printer.AmsUnit{
		{
			ID:          0,
			Humidity:    intP(42),
			Temperature: floatP(28.5),
			Trays: []printer.AmsTray{
				{AmsID: 0, TrayID: 0, TrayType: strP("PLA"), Remain: intP(80)},
				{AmsID: 0, TrayID: 1, Remain: intP(50)}, // empty slot, skipped
				{AmsID: 0, TrayID: 2, TrayType: strP("PETG")}, // no remain, skipped
			},
		},
		{ID: 1}, // no readings, no environment point
	}

	r.RecordState("01S00C000000001", state)

	if len(w.environments) != 1 {
		t.Fatalf("environment points = %d, want 1", len(w.environments))
	}
	if w.environments[0].value != 42 {
		t.Errorf("humidity = %v, want 42", w.environments[0].value)
	}
	if len(w.points) != 1 {
		t.Fatalf("remain points = %d, want 1", len(w.points))
	}
	if w.points[0].measurement != "filament_remain" || w.points[0].value != 80 {
		t.Errorf("remain point = %+v", w.points[0])
	}
}

func TestRecordState_NilWriterIsNoOp(t *testing.T) {
	r := NewRecorder(nil)

	state := printer.NewPrinterState()
	state.PrintProgress = intP(10)

	r.RecordState("01S00C000000001", state) // must not panic
}
