package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"

	"rollcall/internal/core"
)

type resetRequest struct {
	Collections []core.EntityType `json:"collections"`
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Settings())
}

func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input core.SettingsInput
	if !decodeJSON(w, r, &input) {
		return
	}
	settings, _, err := h.svc.UpdateSettings(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// handleReset clears the named collections, or everything for an empty body.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	for _, c := range req.Collections {
		if !slices.Contains(core.Collections, c) {
			h.writeServiceError(w, core.ValidationError{Fields: map[string]string{"collections": "unknown collection " + string(c)}})
			return
		}
	}
	if _, err := h.svc.Reset(r.Context(), req.Collections...); err != nil {
		h.writeServiceError(w, err)
		return
	}
	cleared := req.Collections
	if len(cleared) == 0 {
		cleared = core.Collections
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": cleared})
}
