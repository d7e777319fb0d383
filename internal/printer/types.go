package printer

import "time"

// JobStatus is the printer's reported print-job state.
type JobStatus string

// Job states reported by the device firmware.
const (
	JobIdle    JobStatus = "IDLE"
	JobPrepare JobStatus = "PREPARE"
	JobRunning JobStatus = "RUNNING"
	JobPause   JobStatus = "PAUSE"
	JobFinish  JobStatus = "FINISH"
	JobFailed  JobStatus = "FAILED"
)

// singleSlotUnitID is the first unit id used by single-slot
// high-temperature modules. Units at or above it hold one tray.
const singleSlotUnitID = 128

// externalTrayUnitID is the pseudo unit id the firmware uses for the
// external spool holder (the "virtual tray").
const externalTrayUnitID = 255

// traysPerUnit is the slot count of a regular AMS module.
const traysPerUnit = 4

// PrinterState is the normalised live state of one printer.
//
// Reports after the initial full push are deltas, so the decoder mutates
// this value in place and absent fields keep their previous value. Nil
// pointer fields mean "never reported". The value is never persisted.
type PrinterState struct {
	GcodeState    JobStatus `json:"gcode_state,omitempty"`
	PrintProgress *int      `json:"print_progress,omitempty"`
	LayerNum      *int      `json:"layer_num,omitempty"`
	TotalLayerNum *int      `json:"total_layer_num,omitempty"`
	SubtaskName   string    `json:"subtask_name,omitempty"`

	// NozzleCount is 1 until a per-nozzle descriptor array proves the
	// device is a dual-extruder model.
	NozzleCount int `json:"nozzle_count"`

	// ActiveExtruder is the currently selected extruder on dual-nozzle
	// devices (0 = right, 1 = left).
	ActiveExtruder *int `json:"active_extruder,omitempty"`

	// TrayNowLeft / TrayNowRight are global tray indexes currently feeding
	// each nozzle. Single-nozzle devices only populate TrayNowRight.
	TrayNowLeft  *int `json:"tray_now_left,omitempty"`
	TrayNowRight *int `json:"tray_now_right,omitempty"`

	// NozzleDiameters maps extruder id to bore diameter in millimetres.
	NozzleDiameters map[int]float64 `json:"nozzle_diameters,omitempty"`

	// TrayReadingBits is a bitmask of global tray indexes whose embedded
	// tags are currently being re-read.
	TrayReadingBits uint64 `json:"tray_reading_bits"`

	AmsUnits []AmsUnit `json:"ams_units"`

	// VtTray is the external spool position used when no AMS is attached.
	VtTray *AmsTray `json:"vt_tray,omitempty"`
}

// NewPrinterState returns a PrinterState with single-nozzle defaults.
func NewPrinterState() *PrinterState {
	return &PrinterState{NozzleCount: 1}
}

// AmsUnit is one attached AMS module, or a single-slot high-temperature
// module for unit ids >= 128.
type AmsUnit struct {
	ID          int       `json:"id"`
	Humidity    *int      `json:"humidity,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Extruder    *int      `json:"extruder,omitempty"` // physical extruder the unit feeds
	Trays       []AmsTray `json:"trays"`
}

// SingleSlot reports whether this unit holds exactly one tray.
func (u AmsUnit) SingleSlot() bool {
	return u.ID >= singleSlotUnitID
}

// AmsTray is one filament slot within an AMS unit.
type AmsTray struct {
	AmsID  int `json:"ams_id"`
	TrayID int `json:"tray_id"`

	// TrayType is the material type (e.g. "PLA"). Nil means the slot is
	// empty; the empty->non-empty transition is what fires staged
	// assignments.
	TrayType *string `json:"tray_type"`

	// TrayColor is an 8-hex-digit RGBA string, e.g. "00AE42FF".
	TrayColor *string `json:"tray_color,omitempty"`

	// TrayInfoIdx is the slicer filament code (e.g. "GFA00").
	TrayInfoIdx string `json:"tray_info_idx,omitempty"`

	// KValue is the resolved flow coefficient: inline report value if
	// present, otherwise looked up from the calibration cache via
	// CalibrationIdx, otherwise nil.
	KValue *float64 `json:"k_value,omitempty"`

	// CalibrationIdx is the printer-assigned calibration index reported
	// for this tray, if any.
	CalibrationIdx *int `json:"cali_idx,omitempty"`

	NozzleTempMin *int `json:"nozzle_temp_min,omitempty"`
	NozzleTempMax *int `json:"nozzle_temp_max,omitempty"`

	// Remain is the firmware's remaining-filament estimate in percent.
	Remain *int `json:"remain,omitempty"`
}

// Empty reports whether the slot currently holds no material.
func (t AmsTray) Empty() bool {
	return t.TrayType == nil || *t.TrayType == ""
}

// CalibrationProfile is one resolved flow-coefficient profile from the
// printer's calibration table, keyed by the printer-assigned index.
type CalibrationProfile struct {
	CalIdx         int     `json:"cali_idx"`
	FilamentID     string  `json:"filament_id"`
	NozzleDiameter string  `json:"nozzle_diameter"`
	KValue         float64 `json:"k_value"`
	Name           string  `json:"name"`
	ExtruderID     int     `json:"extruder_id"`
}

// PendingAssignment is a staged spool-to-slot binding, executed the moment
// the slot's tray transitions from empty to holding material.
type PendingAssignment struct {
	AmsID  int `json:"ams_id"`
	TrayID int `json:"tray_id"`

	// SpoolID is the caller's opaque reference to the physical spool.
	SpoolID string `json:"spool_id"`

	TrayInfoIdx   string `json:"tray_info_idx"`
	SettingID     string `json:"setting_id,omitempty"`
	TrayType      string `json:"tray_type"`
	TrayColor     string `json:"tray_color"`
	NozzleTempMin int    `json:"nozzle_temp_min"`
	NozzleTempMax int    `json:"nozzle_temp_max"`

	// CalibrationIdx, when set, selects a calibration profile for the slot
	// after the filament command. FilamentID and NozzleDiameter qualify
	// the selection.
	CalibrationIdx *int   `json:"cali_idx,omitempty"`
	FilamentID     string `json:"filament_id,omitempty"`
	NozzleDiameter string `json:"nozzle_diameter,omitempty"`

	StagedAt time.Time `json:"staged_at"`
}

// slotKey addresses one AMS slot within a connection.
type slotKey struct {
	ams  int
	tray int
}

// ConnectionStatus is a point-in-time connectivity summary for one printer.
type ConnectionStatus struct {
	Serial    string `json:"serial"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
}

// DeepCopy returns a fully independent copy of the state.
// Connections hand copies to callers so API reads never race the decoder.
func (s *PrinterState) DeepCopy() *PrinterState {
	if s == nil {
		return nil
	}

	out := *s
	out.PrintProgress = copyInt(s.PrintProgress)
	out.LayerNum = copyInt(s.LayerNum)
	out.TotalLayerNum = copyInt(s.TotalLayerNum)
	out.ActiveExtruder = copyInt(s.ActiveExtruder)
	out.TrayNowLeft = copyInt(s.TrayNowLeft)
	out.TrayNowRight = copyInt(s.TrayNowRight)

	if s.NozzleDiameters != nil {
		out.NozzleDiameters = make(map[int]float64, len(s.NozzleDiameters))
		for k, v := range s.NozzleDiameters {
			out.NozzleDiameters[k] = v
		}
	}

	if s.AmsUnits != nil {
		out.AmsUnits = make([]AmsUnit, len(s.AmsUnits))
		for i := range s.AmsUnits {
			out.AmsUnits[i] = s.AmsUnits[i].deepCopy()
		}
	}

	if s.VtTray != nil {
		vt := s.VtTray.deepCopy()
		out.VtTray = &vt
	}

	return &out
}

func (u AmsUnit) deepCopy() AmsUnit {
	out := u
	out.Humidity = copyInt(u.Humidity)
	out.Temperature = copyFloat(u.Temperature)
	out.Extruder = copyInt(u.Extruder)
	if u.Trays != nil {
		out.Trays = make([]AmsTray, len(u.Trays))
		for i := range u.Trays {
			out.Trays[i] = u.Trays[i].deepCopy()
		}
	}
	return out
}

func (t AmsTray) deepCopy() AmsTray {
	out := t
	out.TrayType = copyString(t.TrayType)
	out.TrayColor = copyString(t.TrayColor)
	out.KValue = copyFloat(t.KValue)
	out.CalibrationIdx = copyInt(t.CalibrationIdx)
	out.NozzleTempMin = copyInt(t.NozzleTempMin)
	out.NozzleTempMax = copyInt(t.NozzleTempMax)
	out.Remain = copyInt(t.Remain)
	return out
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
