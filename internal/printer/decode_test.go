package printer

import (
	"encoding/json"
	"testing"
)

// parseReport unmarshals a raw print-namespace object the way
// handleReport does, so field types match the wire.
func parseReport(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("parse report: %v", err)
	}
	return m
}

// ─── Delta merge ───────────────────────────────────────────────────

func TestDecodePrint_DeltaMergeKeepsAbsentFields(t *testing.T) {
	st := NewPrinterState()
	cals := newCalibrationTable()

	decodePrint(st, cals, parseReport(t, `{
		"gcode_state": "RUNNING",
		"mc_percent": 42,
		"subtask_name": "benchy.gcode",
		"layer_num": 10,
		"total_layer_num": 100
	}`))

	// A later delta touching only one field leaves the rest intact.
	decodePrint(st, cals, parseReport(t, `{"mc_percent": 43}`))

	if st.GcodeState != JobRunning {
		t.Errorf("GcodeState = %q, want %q", st.GcodeState, JobRunning)
	}
	if st.PrintProgress == nil || *st.PrintProgress != 43 {
		t.Errorf("PrintProgress = %v, want 43", st.PrintProgress)
	}
	if st.SubtaskName != "benchy.gcode" {
		t.Errorf("SubtaskName = %q, want benchy.gcode", st.SubtaskName)
	}
	if st.LayerNum == nil || *st.LayerNum != 10 {
		t.Errorf("LayerNum = %v, want 10", st.LayerNum)
	}
	if st.TotalLayerNum == nil || *st.TotalLayerNum != 100 {
		t.Errorf("TotalLayerNum = %v, want 100", st.TotalLayerNum)
	}
}

func TestDecodePrint_LayersNestedUnder3D(t *testing.T) {
	st := NewPrinterState()
	decodePrint(st, newCalibrationTable(), parseReport(t, `{
		"3D": {"layer_num": 7, "total_layer_num": 240}
	}`))

	if st.LayerNum == nil || *st.LayerNum != 7 {
		t.Errorf("LayerNum = %v, want 7", st.LayerNum)
	}
	if st.TotalLayerNum == nil || *st.TotalLayerNum != 240 {
		t.Errorf("TotalLayerNum = %v, want 240", st.TotalLayerNum)
	}
}

// ─── Tray flow coefficient precedence ──────────────────────────────

func TestDecodeTray_KPrecedence(t *testing.T) {
	cals := newCalibrationTable()
	cals.replace([]CalibrationProfile{{CalIdx: 42, KValue: 0.030}})

	tests := []struct {
		name string
		raw  string
		want *float64
	}{
		{
			name: "inline k wins over cali_idx",
			raw:  `{"id": 0, "k": 0.025, "cali_idx": 42}`,
			want: floatPtr(0.025),
		},
		{
			name: "cali_idx resolved through table",
			raw:  `{"id": 0, "cali_idx": 42}`,
			want: floatPtr(0.030),
		},
		{
			name: "unknown cali_idx leaves k unset",
			raw:  `{"id": 0, "cali_idx": 99}`,
			want: nil,
		},
		{
			name: "neither present",
			raw:  `{"id": 0, "tray_type": "PLA"}`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tray := decodeTray(parseReport(t, tt.raw), 0, 0, cals)
			switch {
			case tt.want == nil && tray.KValue != nil:
				t.Errorf("KValue = %v, want nil", *tray.KValue)
			case tt.want != nil && tray.KValue == nil:
				t.Errorf("KValue = nil, want %v", *tt.want)
			case tt.want != nil && *tray.KValue != *tt.want:
				t.Errorf("KValue = %v, want %v", *tray.KValue, *tt.want)
			}
		})
	}
}

func floatPtr(f float64) *float64 { return &f }

// ─── AMS unit sensors ──────────────────────────────────────────────

func TestDecodeAmsUnits_HumidityRawPreferred(t *testing.T) {
	units, _ := asSlice(parseReport(t, `{
		"ams": [{"id": 0, "humidity": 35, "humidity_raw": 42, "temp": 28.5}]
	}`)["ams"])

	decoded := decodeAmsUnits(units, newCalibrationTable())
	if len(decoded) != 1 {
		t.Fatalf("decoded %d units, want 1", len(decoded))
	}
	if decoded[0].Humidity == nil || *decoded[0].Humidity != 42 {
		t.Errorf("Humidity = %v, want 42 (raw reading wins)", decoded[0].Humidity)
	}
	if decoded[0].Temperature == nil || *decoded[0].Temperature != 28.5 {
		t.Errorf("Temperature = %v, want 28.5", decoded[0].Temperature)
	}
}

func TestDecodeAmsUnits_FeedingExtruderFromInfo(t *testing.T) {
	// info 0x0100: bits 8-11 name the extruder the unit feeds.
	units, _ := asSlice(parseReport(t, `{"ams": [{"id": 1, "info": 256}]}`)["ams"])

	decoded := decodeAmsUnits(units, newCalibrationTable())
	if len(decoded) != 1 || decoded[0].Extruder == nil || *decoded[0].Extruder != 1 {
		t.Fatalf("Extruder = %+v, want 1", decoded)
	}
}

// ─── Insertion detection ───────────────────────────────────────────

func TestDecodeAmsSection_FirstAppearanceNeverTriggers(t *testing.T) {
	st := NewPrinterState()
	transitions := decodePrint(st, newCalibrationTable(), parseReport(t, `{
		"ams": {"ams": [{"id": 0, "tray": [{"id": 1, "tray_type": "PLA"}]}]}
	}`))

	if len(transitions) != 0 {
		t.Errorf("transitions on first appearance = %v, want none", transitions)
	}
}

func TestDecodeAmsSection_EmptyToNonEmptyTriggers(t *testing.T) {
	st := NewPrinterState()
	cals := newCalibrationTable()

	decodePrint(st, cals, parseReport(t, `{
		"ams": {"ams": [{"id": 0, "tray": [{"id": 1}]}]}
	}`))
	transitions := decodePrint(st, cals, parseReport(t, `{
		"ams": {"ams": [{"id": 0, "tray": [{"id": 1, "tray_type": "PETG"}]}]}
	}`))

	want := slotKey{ams: 0, tray: 1}
	if len(transitions) != 1 || transitions[0] != want {
		t.Fatalf("transitions = %v, want [%v]", transitions, want)
	}

	// The same non-empty slot reported again must not re-trigger.
	transitions = decodePrint(st, cals, parseReport(t, `{
		"ams": {"ams": [{"id": 0, "tray": [{"id": 1, "tray_type": "PETG"}]}]}
	}`))
	if len(transitions) != 0 {
		t.Errorf("transitions on repeat = %v, want none", transitions)
	}
}

// ─── Active tray tracking ──────────────────────────────────────────

func TestDecodeAmsSection_TrayNowSingleNozzle(t *testing.T) {
	st := NewPrinterState()
	cals := newCalibrationTable()

	decodePrint(st, cals, parseReport(t, `{"ams": {"tray_now": 2}}`))
	if st.TrayNowRight == nil || *st.TrayNowRight != 2 {
		t.Fatalf("TrayNowRight = %v, want 2", st.TrayNowRight)
	}

	decodePrint(st, cals, parseReport(t, `{"ams": {"tray_now": 255}}`))
	if st.TrayNowRight != nil {
		t.Errorf("TrayNowRight = %v, want nil after 255", *st.TrayNowRight)
	}
}

func TestDecodeExtruders_DualNozzle(t *testing.T) {
	st := NewPrinterState()
	// state 0x10: bits 4-7 carry the active extruder.
	// snow 0x0001 = unit 0 slot 1; 0x0102 = unit 1 slot 2.
	decodePrint(st, newCalibrationTable(), parseReport(t, `{
		"device": {"extder": {
			"state": 16,
			"info": [
				{"id": 0, "diameter": 0.4, "snow": 1},
				{"id": 1, "diameter": 0.6, "snow": 258}
			]
		}}
	}`))

	if st.NozzleCount != 2 {
		t.Errorf("NozzleCount = %d, want 2", st.NozzleCount)
	}
	if st.ActiveExtruder == nil || *st.ActiveExtruder != 1 {
		t.Errorf("ActiveExtruder = %v, want 1", st.ActiveExtruder)
	}
	if st.TrayNowRight == nil || *st.TrayNowRight != 1 {
		t.Errorf("TrayNowRight = %v, want global tray 1", st.TrayNowRight)
	}
	if st.TrayNowLeft == nil || *st.TrayNowLeft != 6 {
		t.Errorf("TrayNowLeft = %v, want global tray 6", st.TrayNowLeft)
	}
	if st.NozzleDiameters[0] != 0.4 || st.NozzleDiameters[1] != 0.6 {
		t.Errorf("NozzleDiameters = %v, want {0:0.4 1:0.6}", st.NozzleDiameters)
	}
}

func TestDecodeExtruders_SnowNoneClearsTray(t *testing.T) {
	st := NewPrinterState()
	cals := newCalibrationTable()

	decodePrint(st, cals, parseReport(t, `{
		"device": {"extder": {"info": [{"id": 0, "snow": 1}, {"id": 1, "snow": 258}]}}
	}`))
	decodePrint(st, cals, parseReport(t, `{
		"device": {"extder": {"info": [{"id": 0, "snow": 65535}, {"id": 1, "snow": 258}]}}
	}`))

	if st.TrayNowRight != nil {
		t.Errorf("TrayNowRight = %v, want nil after snow 0xFFFF", *st.TrayNowRight)
	}
	if st.TrayNowLeft == nil || *st.TrayNowLeft != 6 {
		t.Errorf("TrayNowLeft = %v, want 6 untouched", st.TrayNowLeft)
	}
}

// ─── External spool ────────────────────────────────────────────────

func TestDecodePrint_VtTray(t *testing.T) {
	st := NewPrinterState()
	decodePrint(st, newCalibrationTable(), parseReport(t, `{
		"vt_tray": {"tray_type": "TPU", "tray_color": "00FF00FF", "k": 0.040}
	}`))

	if st.VtTray == nil {
		t.Fatal("VtTray = nil, want decoded tray")
	}
	if st.VtTray.AmsID != externalTrayUnitID || st.VtTray.TrayID != 0 {
		t.Errorf("VtTray addressed %d/%d, want %d/0", st.VtTray.AmsID, st.VtTray.TrayID, externalTrayUnitID)
	}
	if st.VtTray.TrayType == nil || *st.VtTray.TrayType != "TPU" {
		t.Errorf("VtTray.TrayType = %v, want TPU", st.VtTray.TrayType)
	}
	if st.VtTray.KValue == nil || *st.VtTray.KValue != 0.040 {
		t.Errorf("VtTray.KValue = %v, want 0.040", st.VtTray.KValue)
	}
}

// ─── Calibration responses ─────────────────────────────────────────

func TestDecodeCalibrations(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		isResponse bool
		profiles   int
	}{
		{
			name:       "full response",
			raw:        `{"command": "extrusion_cali_get", "filaments": [{"cali_idx": 42, "filament_id": "GFA00", "nozzle_diameter": "0.4", "k_value": 0.030, "name": "PolyTerra"}]}`,
			isResponse: true,
			profiles:   1,
		},
		{
			name:       "empty table still a response",
			raw:        `{"command": "extrusion_cali_get"}`,
			isResponse: true,
			profiles:   0,
		},
		{
			name:       "other command ignored",
			raw:        `{"command": "push_status", "mc_percent": 10}`,
			isResponse: false,
		},
		{
			name:       "plain telemetry ignored",
			raw:        `{"mc_percent": 10}`,
			isResponse: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, ok := decodeCalibrations(parseReport(t, tt.raw))
			if ok != tt.isResponse {
				t.Fatalf("isResponse = %v, want %v", ok, tt.isResponse)
			}
			if len(profiles) != tt.profiles {
				t.Errorf("profiles = %d, want %d", len(profiles), tt.profiles)
			}
		})
	}
}

func TestCalibrationTable_ReplaceIsWholesale(t *testing.T) {
	cals := newCalibrationTable()
	cals.replace([]CalibrationProfile{{CalIdx: 1, KValue: 0.020}, {CalIdx: 2, KValue: 0.025}})
	cals.replace([]CalibrationProfile{{CalIdx: 3, KValue: 0.030}})

	if _, ok := cals.lookup(1); ok {
		t.Error("lookup(1) survived replacement")
	}
	if k, ok := cals.lookup(3); !ok || k != 0.030 {
		t.Errorf("lookup(3) = %v, %v, want 0.030, true", k, ok)
	}
	if got := len(cals.list()); got != 1 {
		t.Errorf("list() len = %d, want 1", got)
	}
}

// ─── Field coercion ────────────────────────────────────────────────

func TestFieldCoercion_StringNumbers(t *testing.T) {
	// Firmware versions disagree on whether numbers arrive as strings.
	data := parseReport(t, `{"mc_percent": "55", "k": "0.025", "name": 7}`)

	if v := intField(data, "mc_percent"); v == nil || *v != 55 {
		t.Errorf("intField string coercion = %v, want 55", v)
	}
	if v := floatField(data, "k"); v == nil || *v != 0.025 {
		t.Errorf("floatField string coercion = %v, want 0.025", v)
	}
	if v := stringField(data, "name"); v != nil {
		t.Errorf("stringField on number = %v, want nil", *v)
	}
	if v := intField(data, "missing"); v != nil {
		t.Errorf("intField on missing key = %v, want nil", *v)
	}
}

func TestAsHexBits(t *testing.T) {
	if bits, ok := asHexBits("0003"); !ok || bits != 3 {
		t.Errorf("asHexBits(0003) = %v, %v, want 3, true", bits, ok)
	}
	if _, ok := asHexBits("zz"); ok {
		t.Error("asHexBits(zz) accepted garbage")
	}
}
