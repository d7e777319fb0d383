package printer

import "testing"

func TestFeedingExtruder(t *testing.T) {
	tests := []struct {
		name string
		info int
		want int
	}{
		{"zero", 0x000, 0},
		{"extruder one", 0x100, 1},
		{"extruder one with low bits set", 0x1FF, 1},
		{"high bits ignored", 0xF200, 2},
		{"mask limits to nibble", 0xF00, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := feedingExtruder(tt.info); got != tt.want {
				t.Errorf("feedingExtruder(%#x) = %d, want %d", tt.info, got, tt.want)
			}
		})
	}
}

func TestActiveExtruder(t *testing.T) {
	tests := []struct {
		name  string
		state int
		want  int
	}{
		{"zero", 0x00, 0},
		{"extruder one", 0x10, 1},
		{"low nibble ignored", 0x1F, 1},
		{"bits above nibble ignored", 0x120, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := activeExtruder(tt.state); got != tt.want {
				t.Errorf("activeExtruder(%#x) = %d, want %d", tt.state, got, tt.want)
			}
		})
	}
}

func TestSnowSplit(t *testing.T) {
	tests := []struct {
		name     string
		snow     int
		wantUnit int
		wantSlot int
	}{
		{"unit 0 slot 1", 0x0001, 0, 1},
		{"unit 1 slot 2", 0x0102, 1, 2},
		{"unit 3 slot 3", 0x0303, 3, 3},
		{"single-slot unit", 0x8000, 128, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snowUnit(tt.snow); got != tt.wantUnit {
				t.Errorf("snowUnit(%#x) = %d, want %d", tt.snow, got, tt.wantUnit)
			}
			if got := snowSlot(tt.snow); got != tt.wantSlot {
				t.Errorf("snowSlot(%#x) = %d, want %d", tt.snow, got, tt.wantSlot)
			}
		})
	}
}

func TestGlobalTrayIndex(t *testing.T) {
	tests := []struct {
		name string
		unit int
		slot int
		want int
	}{
		{"unit 0 slot 1", 0, 1, 1},
		{"unit 1 slot 2", 1, 2, 6},
		{"unit 3 slot 3", 3, 3, 15},
		{"single-slot high-temp unit", 128, 0, 128},
		{"second high-temp unit", 129, 0, 129},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := globalTrayIndex(tt.unit, tt.slot); got != tt.want {
				t.Errorf("globalTrayIndex(%d, %d) = %d, want %d", tt.unit, tt.slot, got, tt.want)
			}
		})
	}
}
