package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spooldock/spooldock-core/internal/printer"
)

// handleListAssignments returns a printer's staged spool bindings.
func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.fleet.PendingAssignments(chi.URLParam(r, "serial"))
	if err != nil {
		writeNotFound(w, "printer not connected")
		return
	}
	if assignments == nil {
		assignments = []printer.PendingAssignment{}
	}
	writeJSON(w, http.StatusOK, assignments)
}

// handleStageAssignment stages a spool-to-slot binding. The binding
// executes automatically when the slot next reports inserted material;
// staging the same slot again overwrites the earlier binding.
func (s *Server) handleStageAssignment(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}

	var a printer.PendingAssignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if a.SpoolID == "" {
		writeBadRequest(w, "spool_id is required")
		return
	}
	if a.AmsID < 0 || a.TrayID < 0 {
		writeBadRequest(w, "ams_id and tray_id must be non-negative")
		return
	}

	if _, err := s.spools.GetByID(r.Context(), a.SpoolID); err != nil {
		writeNotFound(w, "spool not found")
		return
	}

	conn.StageAssignment(a)
	staged, _ := conn.GetPendingAssignment(a.AmsID, a.TrayID)
	writeJSON(w, http.StatusAccepted, staged)
}

// handleCancelAssignment removes a staged binding.
func (s *Server) handleCancelAssignment(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.connectionFor(w, r)
	if !ok {
		return
	}

	amsID, err1 := strconv.Atoi(chi.URLParam(r, "amsID"))
	trayID, err2 := strconv.Atoi(chi.URLParam(r, "trayID"))
	if err1 != nil || err2 != nil {
		writeBadRequest(w, "slot ids must be integers")
		return
	}

	if !conn.CancelAssignment(amsID, trayID) {
		writeNotFound(w, "nothing staged for that slot")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
