package printer

// calibrationTable caches the printer's flow-coefficient profiles, keyed by
// the printer-assigned calibration index. The printer renumbers its index
// space between queries, so each query response replaces the table
// wholesale; there is no merge.
//
// Not safe for concurrent use on its own: the owning Connection guards it
// with its per-connection mutex.
type calibrationTable struct {
	profiles map[int]CalibrationProfile
}

func newCalibrationTable() *calibrationTable {
	return &calibrationTable{profiles: make(map[int]CalibrationProfile)}
}

// replace swaps in a freshly queried profile set.
func (c *calibrationTable) replace(profiles []CalibrationProfile) {
	next := make(map[int]CalibrationProfile, len(profiles))
	for _, p := range profiles {
		next[p.CalIdx] = p
	}
	c.profiles = next
}

// lookup resolves a calibration index to its K value.
func (c *calibrationTable) lookup(calIdx int) (float64, bool) {
	p, ok := c.profiles[calIdx]
	if !ok {
		return 0, false
	}
	return p.KValue, true
}

// list returns all cached profiles in unspecified order.
func (c *calibrationTable) list() []CalibrationProfile {
	out := make([]CalibrationProfile, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p)
	}
	return out
}

// clear drops all cached profiles. Called on disconnect: a reconnected
// session must re-query before indexes can be trusted again.
func (c *calibrationTable) clear() {
	c.profiles = make(map[int]CalibrationProfile)
}
