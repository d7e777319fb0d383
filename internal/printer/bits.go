package printer

// Bit-packed telemetry fields. The firmware packs several values into
// single integers; all shift/mask logic lives here so each field has one
// named, tested extraction point.
const (
	// feedingExtruderShift/Mask select bits 8-11 of an AMS unit's "info"
	// field: the physical extruder the unit feeds.
	feedingExtruderShift = 8
	feedingExtruderMask  = 0xF

	// activeExtruderShift/Mask select bits 4-7 of the extruder "state"
	// field: the currently selected extruder.
	activeExtruderShift = 4
	activeExtruderMask  = 0xF

	// snowUnitShift/snowSlotMask split a per-nozzle "snow" value into its
	// unit index (high byte) and slot index (low byte).
	snowUnitShift = 8
	snowSlotMask  = 0xFF
)

// feedingExtruder extracts which physical extruder an AMS unit feeds from
// its packed info field.
func feedingExtruder(info int) int {
	return (info >> feedingExtruderShift) & feedingExtruderMask
}

// activeExtruder extracts the currently selected extruder index from the
// packed extruder state field.
func activeExtruder(state int) int {
	return (state >> activeExtruderShift) & activeExtruderMask
}

// snowUnit extracts the AMS unit index from a packed per-nozzle tray value.
func snowUnit(snow int) int {
	return snow >> snowUnitShift
}

// snowSlot extracts the slot index from a packed per-nozzle tray value.
func snowSlot(snow int) int {
	return snow & snowSlotMask
}

// globalTrayIndex converts a (unit, slot) pair to the firmware's flat tray
// numbering: four slots per regular AMS unit. Single-slot high-temperature
// units (id >= 128) are addressed by their unit id directly.
func globalTrayIndex(unit, slot int) int {
	if unit >= singleSlotUnitID {
		return unit
	}
	return unit*traysPerUnit + slot
}
