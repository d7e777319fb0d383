package printer

// Command envelopes published on device/<serial>/request. The device
// routes on the envelope's top-level key: "print" for printer commands,
// "pushing" for state push control.

type printEnvelope struct {
	Print any `json:"print"`
}

type pushingEnvelope struct {
	Pushing any `json:"pushing"`
}

// pushAllCommand asks the device to push its complete state instead of
// waiting for the next periodic delta.
type pushAllCommand struct {
	Command    string `json:"command"` // "pushall"
	SequenceID string `json:"sequence_id"`
}

// filamentSettingCommand writes a slot's filament identity: material,
// colour, slicer code, and temperature bounds.
type filamentSettingCommand struct {
	Command       string `json:"command"` // "ams_filament_setting"
	SequenceID    string `json:"sequence_id"`
	AmsID         int    `json:"ams_id"`
	TrayID        int    `json:"tray_id"`
	TrayInfoIdx   string `json:"tray_info_idx"`
	TrayColor     string `json:"tray_color"`
	TrayType      string `json:"tray_type"`
	NozzleTempMin int    `json:"nozzle_temp_min"`
	NozzleTempMax int    `json:"nozzle_temp_max"`
	SettingID     string `json:"setting_id,omitempty"`
}

// calibrationSelectCommand binds a stored calibration profile to a slot.
type calibrationSelectCommand struct {
	Command        string `json:"command"` // "extrusion_cali_sel"
	SequenceID     string `json:"sequence_id"`
	AmsID          int    `json:"ams_id"`
	TrayID         int    `json:"tray_id"`
	CalIdx         int    `json:"cali_idx"`
	FilamentID     string `json:"filament_id,omitempty"`
	NozzleDiameter string `json:"nozzle_diameter,omitempty"`
}

// flowCoefficientCommand writes a slot's K value directly, for firmware
// that predates the indexed calibration table.
type flowCoefficientCommand struct {
	Command    string  `json:"command"` // "extrusion_cali"
	SequenceID string  `json:"sequence_id"`
	AmsID      int     `json:"ams_id"`
	TrayID     int     `json:"tray_id"`
	KValue     float64 `json:"k_value"`
}

// calibrationQueryCommandMsg requests the device's calibration table; the
// response arrives as ordinary telemetry with command "extrusion_cali_get".
type calibrationQueryCommandMsg struct {
	Command        string `json:"command"` // "extrusion_cali_get"
	SequenceID     string `json:"sequence_id"`
	FilamentID     string `json:"filament_id"`
	NozzleDiameter string `json:"nozzle_diameter"`
}

// amsControlCommand drives AMS maintenance actions. With param
// "refresh_rfid" it forces the unit to re-read a slot's embedded tag.
type amsControlCommand struct {
	Command    string `json:"command"` // "ams_control"
	SequenceID string `json:"sequence_id"`
	Param      string `json:"param"`
	AmsID      int    `json:"ams_id"`
	SlotID     int    `json:"slot_id"`
}
