package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spooldock/spooldock-core/internal/auth"
)

// handleListKeys returns API key metadata. Raw key values are never
// retrievable after creation.
func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeJSON(w, http.StatusOK, []auth.APIKey{})
		return
	}
	keys, err := s.keys.List(r.Context())
	if err != nil {
		s.logger.Error("listing api keys failed", "error", err)
		writeInternalError(w, "failed to list keys")
		return
	}
	if keys == nil {
		keys = []auth.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleCreateKey mints a new API key. The raw value appears exactly once
// in this response.
func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeInternalError(w, "key storage not configured")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	raw, err := auth.GenerateKey()
	if err != nil {
		s.logger.Error("generating api key failed", "error", err)
		writeInternalError(w, "failed to generate key")
		return
	}

	key := &auth.APIKey{Name: req.Name, KeyHash: auth.HashKey(raw)}
	if err := s.keys.Create(r.Context(), key); err != nil {
		s.logger.Error("storing api key failed", "error", err)
		writeInternalError(w, "failed to store key")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"key":        raw,
		"created_at": key.CreatedAt,
	})
}

// handleDeleteKey revokes an API key.
func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if s.keys == nil {
		writeInternalError(w, "key storage not configured")
		return
	}
	if err := s.keys.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			writeNotFound(w, "key not found")
			return
		}
		s.logger.Error("deleting api key failed", "error", err)
		writeInternalError(w, "failed to delete key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
