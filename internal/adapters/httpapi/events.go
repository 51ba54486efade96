package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rollcall/internal/core"
	"rollcall/internal/report"
	"rollcall/pkg/domain"
)

type eventResponse struct {
	Event    core.Event         `json:"event"`
	Warnings []domain.Violation `json:"warnings,omitempty"`
}

type attendingRequest struct {
	Attending *bool `json:"attending"`
}

type paidRequest struct {
	Paid *bool `json:"paid"`
}

// handleListEvents returns every event, or the future/past partition around
// ?ref=YYYY-MM-DD (or ?ref=today).
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ref")
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{"events": nonNilSlice(h.svc.ListEvents())})
		return
	}
	ref := h.now().In(h.location)
	if raw != "today" {
		parsed, err := domain.CalendarDate(raw).In(h.location)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "fields": map[string]string{"ref": "must be YYYY-MM-DD"}})
			return
		}
		ref = parsed
	}
	parts := h.svc.PartitionEventsByTime(ref)
	parts.FutureEvents = nonNilSlice(parts.FutureEvents)
	parts.PastEvents = nonNilSlice(parts.PastEvents)
	writeJSON(w, http.StatusOK, parts)
}

func (h *Handler) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var input core.EventInput
	if !decodeJSON(w, r, &input) {
		return
	}
	event, res, err := h.svc.AddEvent(r.Context(), input)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{Event: event, Warnings: res.Warnings()})
}

func (h *Handler) lookupEvent(w http.ResponseWriter, r *http.Request) (core.Event, bool) {
	id := chi.URLParam(r, "id")
	event, ok := h.svc.GetEvent(id)
	if !ok {
		h.writeServiceError(w, domain.ErrNotFound{Entity: domain.EntityEvent, ID: id})
	}
	return event, ok
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	if event, ok := h.lookupEvent(w, r); ok {
		writeJSON(w, http.StatusOK, eventResponse{Event: event})
	}
}

func (h *Handler) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch core.EventPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	event, res, err := h.svc.UpdateEvent(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse{Event: event, Warnings: res.Warnings()})
}

func (h *Handler) handleRemoveEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.svc.RemoveEvent(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePeopleForEvent(w http.ResponseWriter, r *http.Request) {
	event, ok := h.lookupEvent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"people": nonNilSlice(h.svc.PeopleForEvent(event.ID))})
}

func (h *Handler) handleEventStats(w http.ResponseWriter, r *http.Request) {
	event, ok := h.lookupEvent(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.svc.EventStats(event.ID))
}

func (h *Handler) handleSetAttending(w http.ResponseWriter, r *http.Request) {
	var req attendingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Attending == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "attending: required", "fields": map[string]string{"attending": "required"}})
		return
	}
	eventID, personID := chi.URLParam(r, "id"), chi.URLParam(r, "personId")
	if _, err := h.svc.SetAttending(r.Context(), eventID, personID, *req.Attending); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.EventStats(eventID))
}

func (h *Handler) handleSetPaid(w http.ResponseWriter, r *http.Request) {
	var req paidRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Paid == nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "paid: required", "fields": map[string]string{"paid": "required"}})
		return
	}
	eventID, personID := chi.URLParam(r, "id"), chi.URLParam(r, "personId")
	if _, err := h.svc.SetPaid(r.Context(), eventID, personID, *req.Paid); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.EventStats(eventID))
}

func (h *Handler) handleReport(format report.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roster, err := report.Build(h.svc, chi.URLParam(r, "id"), h.now())
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		payload, err := report.Render(roster, format)
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", `attachment; filename="`+roster.Filename(format)+`"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
	}
}

func (h *Handler) handleBadges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{
		"total_events":  h.svc.TotalEventsCount(),
		"unpaid_events": h.svc.UnpaidEventsCount(),
	})
}
