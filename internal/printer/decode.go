package printer

// Telemetry decoding. Everything here is a pure function from
// (previous state, raw report object) to updated state: no I/O, no locks,
// no ownership. The Connection calls these under its own mutex.
//
// Delta semantics are load-bearing: after the initial pushall the printer
// sends only the fields that changed, so an absent field always means
// "keep the previous value".

// Per-nozzle descriptor ids. The firmware numbers the right nozzle 0 and
// the left nozzle 1.
const (
	nozzleRight = 0
	nozzleLeft  = 1
)

// snowNone is the "no tray loaded" marker in a per-nozzle snow value.
const snowNone = 0xFFFF

// trayNowNone is the "no tray loaded" marker in the single-nozzle
// ams.tray_now field. 254 means the external spool and stays meaningful.
const trayNowNone = 255

// dualNozzleCount is the descriptor array length that marks a
// dual-extruder device.
const dualNozzleCount = 2

// calibrationQueryCommand is the command echoed in calibration-table
// responses.
const calibrationQueryCommand = "extrusion_cali_get"

// decodePrint merges one print-namespace report into st and returns the
// slots whose trays went from empty to non-empty in this decode. The
// calibration table resolves tray flow coefficients reported by index.
func decodePrint(st *PrinterState, cals *calibrationTable, data map[string]any) []slotKey {
	if s := stringField(data, "gcode_state"); s != nil {
		st.GcodeState = JobStatus(*s)
	}
	if v := intField(data, "mc_percent"); v != nil {
		st.PrintProgress = v
	}
	if s := stringField(data, "subtask_name"); s != nil {
		st.SubtaskName = *s
	}

	decodeLayers(st, data)

	var transitions []slotKey
	if amsData, ok := asMap(data["ams"]); ok {
		transitions = decodeAmsSection(st, cals, amsData)
	}

	if vtData, ok := asMap(data["vt_tray"]); ok {
		vt := decodeTray(vtData, externalTrayUnitID, 0, cals)
		st.VtTray = &vt
	}

	if deviceData, ok := asMap(data["device"]); ok {
		if extData, ok := asMap(deviceData["extder"]); ok {
			decodeExtruders(st, extData)
		}
	}

	return transitions
}

// decodeLayers reads layer progress, which some firmware nests under a
// "3D" object and some reports at the top level.
func decodeLayers(st *PrinterState, data map[string]any) {
	layers := data
	if nested, ok := asMap(data["3D"]); ok {
		layers = nested
	}
	if v := intField(layers, "layer_num"); v != nil {
		st.LayerNum = v
	}
	if v := intField(layers, "total_layer_num"); v != nil {
		st.TotalLayerNum = v
	}
}

// decodeAmsSection rebuilds the unit list from a report's ams object and
// detects empty->non-empty tray transitions against the previous state.
func decodeAmsSection(st *PrinterState, cals *calibrationTable, amsData map[string]any) []slotKey {
	var transitions []slotKey

	if units, ok := asSlice(amsData["ams"]); ok {
		// Snapshot which observed slots were empty before replacement.
		wasEmpty := make(map[slotKey]bool)
		for _, u := range st.AmsUnits {
			for _, t := range u.Trays {
				wasEmpty[slotKey{ams: t.AmsID, tray: t.TrayID}] = t.Empty()
			}
		}

		st.AmsUnits = decodeAmsUnits(units, cals)

		// The trigger fires only for slots seen empty on a previous
		// decode: a slot's first appearance never counts as an insertion.
		for _, u := range st.AmsUnits {
			for _, t := range u.Trays {
				key := slotKey{ams: t.AmsID, tray: t.TrayID}
				if empty, seen := wasEmpty[key]; seen && empty && !t.Empty() {
					transitions = append(transitions, key)
				}
			}
		}
	}

	if v, ok := amsData["tray_now"]; ok {
		if now, ok := asInt(v); ok && st.NozzleCount == 1 {
			// Dual-nozzle devices report per-nozzle values instead.
			if now == trayNowNone {
				st.TrayNowRight = nil
			} else {
				st.TrayNowRight = &now
			}
		}
	}

	if v, ok := amsData["tray_reading_bits"]; ok {
		if bits, ok := asHexBits(v); ok {
			st.TrayReadingBits = bits
		}
	}

	return transitions
}

// decodeAmsUnits parses the reported unit array.
func decodeAmsUnits(units []any, cals *calibrationTable) []AmsUnit {
	out := make([]AmsUnit, 0, len(units))
	for _, raw := range units {
		unitData, ok := asMap(raw)
		if !ok {
			continue
		}

		unit := AmsUnit{}
		if id := intField(unitData, "id"); id != nil {
			unit.ID = *id
		}

		// The raw high-resolution sensor reading wins over the coarser
		// rounded one when the report carries both.
		if v := intField(unitData, "humidity_raw"); v != nil {
			unit.Humidity = v
		} else if v := intField(unitData, "humidity"); v != nil {
			unit.Humidity = v
		}

		if v := floatField(unitData, "temp"); v != nil {
			unit.Temperature = v
		} else if v := floatField(unitData, "temperature"); v != nil {
			unit.Temperature = v
		}

		if info := intField(unitData, "info"); info != nil {
			ext := feedingExtruder(*info)
			unit.Extruder = &ext
		}

		if trays, ok := asSlice(unitData["tray"]); ok {
			unit.Trays = make([]AmsTray, 0, len(trays))
			for _, rawTray := range trays {
				trayData, ok := asMap(rawTray)
				if !ok {
					continue
				}
				trayID := 0
				if id := intField(trayData, "id"); id != nil {
					trayID = *id
				}
				unit.Trays = append(unit.Trays, decodeTray(trayData, unit.ID, trayID, cals))
			}
		}

		out = append(out, unit)
	}
	return out
}

// decodeTray parses one tray object. Flow-coefficient precedence: inline
// "k" value, then calibration-index lookup, then nil.
func decodeTray(trayData map[string]any, amsID, trayID int, cals *calibrationTable) AmsTray {
	tray := AmsTray{
		AmsID:          amsID,
		TrayID:         trayID,
		TrayType:       stringField(trayData, "tray_type"),
		TrayColor:      stringField(trayData, "tray_color"),
		CalibrationIdx: intField(trayData, "cali_idx"),
		NozzleTempMin:  intField(trayData, "nozzle_temp_min"),
		NozzleTempMax:  intField(trayData, "nozzle_temp_max"),
		Remain:         intField(trayData, "remain"),
	}

	if s := stringField(trayData, "tray_info_idx"); s != nil {
		tray.TrayInfoIdx = *s
	}

	if k := floatField(trayData, "k"); k != nil {
		tray.KValue = k
	} else if tray.CalibrationIdx != nil {
		if k, ok := cals.lookup(*tray.CalibrationIdx); ok {
			tray.KValue = &k
		}
	}

	return tray
}

// decodeExtruders parses the per-nozzle descriptor object of dual-extruder
// devices: nozzle count, bore diameters, the active extruder, and which
// global tray feeds each nozzle.
func decodeExtruders(st *PrinterState, extData map[string]any) {
	if state := intField(extData, "state"); state != nil {
		active := activeExtruder(*state)
		st.ActiveExtruder = &active
	}

	info, ok := asSlice(extData["info"])
	if !ok {
		return
	}
	if len(info) >= dualNozzleCount {
		st.NozzleCount = dualNozzleCount
	}

	for _, raw := range info {
		desc, ok := asMap(raw)
		if !ok {
			continue
		}
		id := 0
		if v := intField(desc, "id"); v != nil {
			id = *v
		}

		if d := floatField(desc, "diameter"); d != nil {
			if st.NozzleDiameters == nil {
				st.NozzleDiameters = make(map[int]float64)
			}
			st.NozzleDiameters[id] = *d
		}

		snow := intField(desc, "snow")
		if snow == nil {
			continue
		}

		var global *int
		if *snow != snowNone {
			g := globalTrayIndex(snowUnit(*snow), snowSlot(*snow))
			global = &g
		}
		switch id {
		case nozzleRight:
			st.TrayNowRight = global
		case nozzleLeft:
			st.TrayNowLeft = global
		}
	}
}

// decodeCalibrations parses an extrusion_cali_get response into profiles.
// Returns false when the report is not a calibration response.
func decodeCalibrations(data map[string]any) ([]CalibrationProfile, bool) {
	cmd := stringField(data, "command")
	if cmd == nil || *cmd != calibrationQueryCommand {
		return nil, false
	}

	raw, ok := asSlice(data["filaments"])
	if !ok {
		// A response with no filaments still replaces the table: the
		// printer may legitimately have zero stored profiles.
		return nil, true
	}

	profiles := make([]CalibrationProfile, 0, len(raw))
	for _, item := range raw {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		p := CalibrationProfile{}
		if v := intField(m, "cali_idx"); v != nil {
			p.CalIdx = *v
		}
		if s := stringField(m, "filament_id"); s != nil {
			p.FilamentID = *s
		}
		if s := stringField(m, "nozzle_diameter"); s != nil {
			p.NozzleDiameter = *s
		}
		if k := floatField(m, "k_value"); k != nil {
			p.KValue = *k
		}
		if s := stringField(m, "name"); s != nil {
			p.Name = *s
		}
		if v := intField(m, "extruder_id"); v != nil {
			p.ExtruderID = *v
		}
		profiles = append(profiles, p)
	}
	return profiles, true
}
