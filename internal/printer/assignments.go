package printer

import "time"

// assignmentStore holds staged spool-to-slot bindings for one connection,
// keyed by (unit, slot). At most one assignment exists per slot; staging
// overwrites any prior entry.
//
// Not safe for concurrent use on its own: the owning Connection guards it
// with its per-connection mutex.
type assignmentStore struct {
	pending map[slotKey]PendingAssignment
}

func newAssignmentStore() *assignmentStore {
	return &assignmentStore{pending: make(map[slotKey]PendingAssignment)}
}

// stage records an assignment for the slot, replacing any existing one.
func (s *assignmentStore) stage(a PendingAssignment) {
	if a.StagedAt.IsZero() {
		a.StagedAt = time.Now().UTC()
	}
	s.pending[slotKey{ams: a.AmsID, tray: a.TrayID}] = a
}

// cancel removes the assignment for the slot.
// Returns false if no assignment was staged there.
func (s *assignmentStore) cancel(amsID, trayID int) bool {
	key := slotKey{ams: amsID, tray: trayID}
	if _, ok := s.pending[key]; !ok {
		return false
	}
	delete(s.pending, key)
	return true
}

// take removes and returns the assignment for the slot, if any.
// Used by the insertion trigger so execution and removal are one step.
func (s *assignmentStore) take(key slotKey) (PendingAssignment, bool) {
	a, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	return a, ok
}

// get returns the assignment for the slot without removing it.
func (s *assignmentStore) get(amsID, trayID int) (PendingAssignment, bool) {
	a, ok := s.pending[slotKey{ams: amsID, tray: trayID}]
	return a, ok
}

// all returns every staged assignment in unspecified order.
func (s *assignmentStore) all() []PendingAssignment {
	out := make([]PendingAssignment, 0, len(s.pending))
	for _, a := range s.pending {
		out = append(out, a)
	}
	return out
}
