package printer

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTransport records publishes so tests can assert on the commands a
// connection issues without a live device.
type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	published []fakeMessage
}

type fakeMessage struct {
	topic   string
	payload string
}

func (f *fakeTransport) Publish(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, fakeMessage{topic: topic, payload: string(payload)})
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeTransport) messages() []fakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeMessage, len(f.published))
	copy(out, f.published)
	return out
}

// testConnection returns a connection wired to a fake transport in the
// live state, as if Connect and the session handshake had completed.
func testConnection(t *testing.T, opts Options, cbs callbacks) (*Connection, *fakeTransport) {
	t.Helper()
	c := newConnection("01S00C000000001", "192.168.1.50", "12345678", "Workbench X1C", opts, cbs)
	ft := &fakeTransport{connected: true}
	c.mu.Lock()
	c.transport = ft
	c.live = true
	c.mu.Unlock()
	return c, ft
}

func report(t *testing.T, c *Connection, raw string) {
	t.Helper()
	c.handleReport([]byte(raw))
}

// ─── Connectivity and the grace window ─────────────────────────────

func TestConnected_GraceWindowAfterDrop(t *testing.T) {
	c, _ := testConnection(t, Options{GracePeriod: time.Hour}, callbacks{})

	c.handleSessionLost(nil)
	if !c.Connected() {
		t.Error("Connected() = false inside grace window, want true")
	}
}

func TestConnected_FalseAfterGraceElapses(t *testing.T) {
	c, _ := testConnection(t, Options{GracePeriod: 0}, callbacks{})

	c.handleSessionLost(nil)
	if c.Connected() {
		t.Error("Connected() = true after grace elapsed, want false")
	}
}

func TestConnected_DeliberateDisconnectSkipsGrace(t *testing.T) {
	c, ft := testConnection(t, Options{GracePeriod: time.Hour}, callbacks{})

	c.Disconnect()
	if c.Connected() {
		t.Error("Connected() = true after deliberate disconnect, want false")
	}
	if ft.IsConnected() {
		t.Error("transport still connected after Disconnect")
	}
	if got := len(c.Calibrations()); got != 0 {
		t.Errorf("calibration cache kept %d profiles across disconnect, want 0", got)
	}
}

// ─── Command publishing ────────────────────────────────────────────

func TestPublish_FailsWhenNotConnected(t *testing.T) {
	c := newConnection("01S00C000000001", "192.168.1.50", "12345678", "", Options{}, callbacks{})

	if c.SetFilament(0, 1, FilamentSetting{TrayType: "PLA"}) {
		t.Error("SetFilament succeeded with no transport")
	}
	if c.RequestFullState() {
		t.Error("RequestFullState succeeded with no transport")
	}
}

func TestSetCalibration_PublishesSelectCommand(t *testing.T) {
	c, ft := testConnection(t, Options{}, callbacks{})

	if !c.SetCalibration(0, 3, 42, "GFA00", "0.4") {
		t.Fatal("SetCalibration returned false")
	}

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if want := "device/01S00C000000001/request"; msgs[0].topic != want {
		t.Errorf("topic = %q, want %q", msgs[0].topic, want)
	}

	var env struct {
		Print map[string]any `json:"print"`
	}
	if err := json.Unmarshal([]byte(msgs[0].payload), &env); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if env.Print["command"] != "extrusion_cali_sel" {
		t.Errorf("command = %v, want extrusion_cali_sel", env.Print["command"])
	}
	if env.Print["ams_id"] != float64(0) || env.Print["tray_id"] != float64(3) {
		t.Errorf("slot = %v/%v, want 0/3", env.Print["ams_id"], env.Print["tray_id"])
	}
	if env.Print["cali_idx"] != float64(42) {
		t.Errorf("cali_idx = %v, want 42", env.Print["cali_idx"])
	}
	if env.Print["filament_id"] != "GFA00" || env.Print["nozzle_diameter"] != "0.4" {
		t.Errorf("profile = %v/%v, want GFA00/0.4", env.Print["filament_id"], env.Print["nozzle_diameter"])
	}
}

func TestSetFilament_PublishesToRequestTopic(t *testing.T) {
	c, ft := testConnection(t, Options{}, callbacks{})

	if !c.SetFilament(1, 2, FilamentSetting{
		TrayInfoIdx:   "GFA00",
		TrayType:      "PLA",
		TrayColor:     "FF0000FF",
		NozzleTempMin: 190,
		NozzleTempMax: 230,
	}) {
		t.Fatal("SetFilament returned false")
	}

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if want := "device/01S00C000000001/request"; msgs[0].topic != want {
		t.Errorf("topic = %q, want %q", msgs[0].topic, want)
	}

	var env struct {
		Print map[string]any `json:"print"`
	}
	if err := json.Unmarshal([]byte(msgs[0].payload), &env); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if env.Print["command"] != "ams_filament_setting" {
		t.Errorf("command = %v, want ams_filament_setting", env.Print["command"])
	}
	if env.Print["ams_id"] != float64(1) || env.Print["tray_id"] != float64(2) {
		t.Errorf("slot = %v/%v, want 1/2", env.Print["ams_id"], env.Print["tray_id"])
	}
	if env.Print["tray_info_idx"] != "GFA00" {
		t.Errorf("tray_info_idx = %v, want GFA00", env.Print["tray_info_idx"])
	}
}

func TestSequenceIDs_Increase(t *testing.T) {
	c, ft := testConnection(t, Options{}, callbacks{})

	c.RequestCalibrations()
	c.RequestCalibrations()

	msgs := ft.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0].payload, `"sequence_id":"1"`) ||
		!strings.Contains(msgs[1].payload, `"sequence_id":"2"`) {
		t.Errorf("sequence ids not monotonic: %s / %s", msgs[0].payload, msgs[1].payload)
	}
}

// ─── Report handling ───────────────────────────────────────────────

func TestHandleReport_UpdatesStateAndNotifies(t *testing.T) {
	var gotSerial string
	var gotState *PrinterState
	c, _ := testConnection(t, Options{}, callbacks{
		onStateUpdate: func(serial string, state *PrinterState) {
			gotSerial = serial
			gotState = state
		},
	})

	report(t, c, `{"print": {"gcode_state": "RUNNING", "mc_percent": 12}}`)

	if gotSerial != c.Serial() {
		t.Errorf("callback serial = %q, want %q", gotSerial, c.Serial())
	}
	if gotState == nil || gotState.GcodeState != JobRunning {
		t.Fatalf("callback state = %+v, want RUNNING", gotState)
	}

	// The callback snapshot must be independent of the live state.
	gotState.GcodeState = JobFailed
	if st := c.State(); st.GcodeState != JobRunning {
		t.Errorf("live state mutated through snapshot: %q", st.GcodeState)
	}
}

func TestHandleReport_IgnoresMalformedAndForeign(t *testing.T) {
	c, _ := testConnection(t, Options{}, callbacks{})

	report(t, c, `not json`)
	report(t, c, `{"info": {"command": "get_version"}}`)
	report(t, c, `{"print": "not an object"}`)

	if st := c.State(); st.GcodeState != "" || st.PrintProgress != nil {
		t.Errorf("state changed by ignored reports: %+v", st)
	}
}

func TestHandleReport_CalibrationResponsePopulatesCache(t *testing.T) {
	c, _ := testConnection(t, Options{}, callbacks{})

	report(t, c, `{"print": {"command": "extrusion_cali_get", "filaments": [
		{"cali_idx": 42, "filament_id": "GFA00", "nozzle_diameter": "0.4", "k_value": 0.030, "name": "PolyTerra PLA"}
	]}}`)

	cals := c.Calibrations()
	if len(cals) != 1 {
		t.Fatalf("cached %d profiles, want 1", len(cals))
	}
	if cals[0].CalIdx != 42 || cals[0].KValue != 0.030 {
		t.Errorf("profile = %+v, want cali_idx 42 k 0.030", cals[0])
	}
}

// ─── Staged assignments ────────────────────────────────────────────

func TestStageAssignment_OverwriteAndCancel(t *testing.T) {
	c, _ := testConnection(t, Options{}, callbacks{})

	c.StageAssignment(PendingAssignment{AmsID: 0, TrayID: 1, SpoolID: "spool-a"})
	c.StageAssignment(PendingAssignment{AmsID: 0, TrayID: 1, SpoolID: "spool-b"})

	a, ok := c.GetPendingAssignment(0, 1)
	if !ok || a.SpoolID != "spool-b" {
		t.Fatalf("pending = %+v, %v, want spool-b", a, ok)
	}
	if len(c.PendingAssignments()) != 1 {
		t.Errorf("staging twice created %d entries, want 1", len(c.PendingAssignments()))
	}

	if !c.CancelAssignment(0, 1) {
		t.Error("CancelAssignment returned false for staged slot")
	}
	if c.CancelAssignment(0, 1) {
		t.Error("CancelAssignment returned true for empty slot")
	}
	if c.CancelAssignment(3, 3) {
		t.Error("CancelAssignment returned true for never-staged slot")
	}
}

func TestInsertion_ExecutesStagedAssignment(t *testing.T) {
	c, ft := testConnection(t, Options{}, callbacks{})

	calIdx := 42
	c.StageAssignment(PendingAssignment{
		AmsID: 0, TrayID: 1,
		SpoolID:        "spool-a",
		TrayInfoIdx:    "GFA00",
		TrayType:       "PLA",
		TrayColor:      "FF0000FF",
		NozzleTempMin:  190,
		NozzleTempMax:  230,
		CalibrationIdx: &calIdx,
		FilamentID:     "GFA00",
		NozzleDiameter: "0.4",
	})

	// Slot observed empty, then material arrives.
	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 1}]}]}}}`)
	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 1, "tray_type": "PLA"}]}]}}}`)

	msgs := ft.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d commands, want filament setting + calibration select", len(msgs))
	}
	if !strings.Contains(msgs[0].payload, "ams_filament_setting") {
		t.Errorf("first command = %s, want ams_filament_setting", msgs[0].payload)
	}
	if !strings.Contains(msgs[1].payload, "extrusion_cali_sel") {
		t.Errorf("second command = %s, want extrusion_cali_sel", msgs[1].payload)
	}

	if _, ok := c.GetPendingAssignment(0, 1); ok {
		t.Error("assignment still pending after execution")
	}

	// A later insertion into the same slot must not re-fire.
	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 1}]}]}}}`)
	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 1, "tray_type": "PETG"}]}]}}}`)
	if got := len(ft.messages()); got != 2 {
		t.Errorf("re-insertion published %d extra commands, want 0", got-2)
	}
}

func TestInsertion_WithoutCalibrationSkipsSelect(t *testing.T) {
	c, ft := testConnection(t, Options{}, callbacks{})

	c.StageAssignment(PendingAssignment{AmsID: 0, TrayID: 2, SpoolID: "spool-c", TrayType: "PETG"})

	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 2}]}]}}}`)
	report(t, c, `{"print": {"ams": {"ams": [{"id": 0, "tray": [{"id": 2, "tray_type": "PETG"}]}]}}}`)

	msgs := ft.messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d commands, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0].payload, "ams_filament_setting") {
		t.Errorf("command = %s, want ams_filament_setting only", msgs[0].payload)
	}
}
