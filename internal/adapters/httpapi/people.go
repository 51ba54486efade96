package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/core"
	"rollcall/pkg/domain"
)

type personResponse struct {
	Person   core.Person        `json:"person"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

type batchRequest struct {
	People []core.PersonInput `json:"people"`
}

type batchResponse struct {
	People   []core.Person      `json:"people"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

func (h *Handler) handleListPeople(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"people": nonNilSlice(h.svc.ListPeople())})
}

func (h *Handler) handleAddPerson(w http.ResponseWriter, r *http.Request) {
	var input core.PersonInput
	if !decodeJSON(w, r, &input) {
		return
	}
	input.AllowDuplicate = forced(r)
	person, res, err := h.svc.AddPerson(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, personResponse{Person: person, Warnings: res.Warnings()})
}

func (h *Handler) handleAddPeople(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.People) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "people: required")
		return
	}
	force := forced(r)
	for i := range req.People {
		req.People[i].AllowDuplicate = force
	}
	people, res, err := h.svc.AddPeople(r.Context(), req.People)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse{People: people, Warnings: res.Warnings()})
}

func (h *Handler) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	person, ok := h.svc.GetPerson(id)
	if !ok {
		h.writeServiceError(w, domain.ErrNotFound{Entity: domain.EntityPerson, ID: id})
		return
	}
	writeJSON(w, http.StatusOK, personResponse{Person: person})
}

func (h *Handler) handleRemovePerson(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemovePerson(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
