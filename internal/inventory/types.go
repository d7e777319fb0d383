package inventory

import "time"

// Spool is one physical spool of filament.
//
// Weights are grams. LabelWeight is the advertised filament weight,
// CoreWeight the empty-spool tare; WeightNew and WeightCurrent are
// measured gross weights, so remaining filament is WeightCurrent minus
// CoreWeight.
type Spool struct {
	ID             string     `json:"id"`
	TagID          *string    `json:"tag_id,omitempty"`
	Material       string     `json:"material"`
	Subtype        *string    `json:"subtype,omitempty"`
	ColorName      *string    `json:"color_name,omitempty"`
	RGBA           *string    `json:"rgba,omitempty"`
	Brand          *string    `json:"brand,omitempty"`
	LabelWeight    int        `json:"label_weight"`
	CoreWeight     int        `json:"core_weight"`
	WeightNew      *int       `json:"weight_new,omitempty"`
	WeightCurrent  *int       `json:"weight_current,omitempty"`
	SlicerFilament *string    `json:"slicer_filament,omitempty"`
	Note           *string    `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RemainingWeight estimates the grams of filament left on the spool.
// Falls back to the label weight when the spool was never weighed.
func (s *Spool) RemainingWeight() int {
	if s.WeightCurrent != nil {
		if g := *s.WeightCurrent - s.CoreWeight; g > 0 {
			return g
		}
		return 0
	}
	return s.LabelWeight
}

// Printer is a registered device and the credentials to reach it.
type Printer struct {
	Serial      string     `json:"serial"`
	Name        string     `json:"name"`
	Model       string     `json:"model,omitempty"`
	IPAddress   string     `json:"ip_address"`
	AccessCode  string     `json:"-"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	AutoConnect bool       `json:"auto_connect"`
}

// UsageEntry records filament consumed by one print job.
type UsageEntry struct {
	ID            int64     `json:"id"`
	SpoolID       string    `json:"spool_id"`
	PrinterSerial string    `json:"printer_serial,omitempty"`
	PrintName     string    `json:"print_name,omitempty"`
	WeightUsed    float64   `json:"weight_used"`
	Timestamp     time.Time `json:"timestamp"`
}
