package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/spooldock/spooldock-core/internal/inventory"
)

// handleListSpools returns the spool catalogue, optionally filtered by
// ?material=.
func (s *Server) handleListSpools(w http.ResponseWriter, r *http.Request) {
	var (
		spools []inventory.Spool
		err    error
	)
	if material := r.URL.Query().Get("material"); material != "" {
		spools, err = s.spools.ListByMaterial(r.Context(), material)
	} else {
		spools, err = s.spools.List(r.Context())
	}
	if err != nil {
		s.logger.Error("listing spools failed", "error", err)
		writeInternalError(w, "failed to list spools")
		return
	}
	if spools == nil {
		spools = []inventory.Spool{}
	}
	writeJSON(w, http.StatusOK, spools)
}

// handleCreateSpool registers a new spool.
func (s *Server) handleCreateSpool(w http.ResponseWriter, r *http.Request) {
	var spool inventory.Spool
	if err := json.NewDecoder(r.Body).Decode(&spool); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if spool.Material == "" {
		writeBadRequest(w, "material is required")
		return
	}

	if err := s.spools.Create(r.Context(), &spool); err != nil {
		if errors.Is(err, inventory.ErrSpoolExists) {
			writeConflict(w, "a spool with that id or tag already exists")
			return
		}
		s.logger.Error("creating spool failed", "error", err)
		writeInternalError(w, "failed to create spool")
		return
	}
	writeJSON(w, http.StatusCreated, spool)
}

// handleGetSpool returns one spool by id.
func (s *Server) handleGetSpool(w http.ResponseWriter, r *http.Request) {
	spool, err := s.spools.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, inventory.ErrSpoolNotFound) {
			writeNotFound(w, "spool not found")
			return
		}
		s.logger.Error("getting spool failed", "error", err)
		writeInternalError(w, "failed to get spool")
		return
	}
	writeJSON(w, http.StatusOK, spool)
}

// handleGetSpoolByTag resolves an RFID tag to its spool. Used by the
// dashboard when a tag is scanned at a slot.
func (s *Server) handleGetSpoolByTag(w http.ResponseWriter, r *http.Request) {
	spool, err := s.spools.GetByTag(r.Context(), chi.URLParam(r, "tagID"))
	if err != nil {
		if errors.Is(err, inventory.ErrSpoolNotFound) {
			writeNotFound(w, "no spool carries that tag")
			return
		}
		s.logger.Error("tag lookup failed", "error", err)
		writeInternalError(w, "failed to look up tag")
		return
	}
	writeJSON(w, http.StatusOK, spool)
}

// handleUpdateSpool applies a partial update to a spool.
func (s *Server) handleUpdateSpool(w http.ResponseWriter, r *http.Request) {
	spool, err := s.spools.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, inventory.ErrSpoolNotFound) {
			writeNotFound(w, "spool not found")
			return
		}
		s.logger.Error("getting spool failed", "error", err)
		writeInternalError(w, "failed to get spool")
		return
	}

	// Decode over the existing record so omitted fields keep their values.
	if err := json.NewDecoder(r.Body).Decode(spool); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	spool.ID = chi.URLParam(r, "id")

	if err := s.spools.Update(r.Context(), spool); err != nil {
		if errors.Is(err, inventory.ErrSpoolExists) {
			writeConflict(w, "tag already registered to another spool")
			return
		}
		s.logger.Error("updating spool failed", "error", err)
		writeInternalError(w, "failed to update spool")
		return
	}
	writeJSON(w, http.StatusOK, spool)
}

// handleDeleteSpool removes a spool and its usage history.
func (s *Server) handleDeleteSpool(w http.ResponseWriter, r *http.Request) {
	if err := s.spools.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, inventory.ErrSpoolNotFound) {
			writeNotFound(w, "spool not found")
			return
		}
		s.logger.Error("deleting spool failed", "error", err)
		writeInternalError(w, "failed to delete spool")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSpoolUsage returns a spool's usage history, newest first.
func (s *Server) handleSpoolUsage(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.spools.UsageHistory(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.logger.Error("querying usage history failed", "error", err)
		writeInternalError(w, "failed to query usage history")
		return
	}
	if entries == nil {
		entries = []inventory.UsageEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleRecordSpoolUsage appends a usage entry for a finished print.
func (s *Server) handleRecordSpoolUsage(w http.ResponseWriter, r *http.Request) {
	var entry inventory.UsageEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	entry.SpoolID = chi.URLParam(r, "id")
	if entry.WeightUsed <= 0 {
		writeBadRequest(w, "weight_used must be positive")
		return
	}

	if _, err := s.spools.GetByID(r.Context(), entry.SpoolID); err != nil {
		if errors.Is(err, inventory.ErrSpoolNotFound) {
			writeNotFound(w, "spool not found")
			return
		}
		s.logger.Error("getting spool failed", "error", err)
		writeInternalError(w, "failed to get spool")
		return
	}

	if err := s.spools.RecordUsage(r.Context(), &entry); err != nil {
		s.logger.Error("recording usage failed", "error", err)
		writeInternalError(w, "failed to record usage")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
