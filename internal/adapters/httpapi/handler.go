// Package httpapi exposes the rollcall service over JSON HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"rollcall/internal/core"
	"rollcall/internal/report"
	"rollcall/pkg/domain"
)

// Handler routes API requests to the service.
type Handler struct {
	svc      *core.Service
	router   chi.Router
	logger   *slog.Logger
	ready    func() bool
	metrics  http.Handler
	limiter  *rate.Limiter
	location *time.Location
	now      func() time.Time
}

// Option customises a Handler.
type Option func(*Handler)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithReadiness gates every API route behind ready; until it reports true
// those routes answer 503.
func WithReadiness(ready func() bool) Option {
	return func(h *Handler) {
		if ready != nil {
			h.ready = ready
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(metrics http.Handler) Option {
	return func(h *Handler) { h.metrics = metrics }
}

// WithRateLimit admits perSecond requests with the given burst across all
// clients. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLocation sets the zone that defines "today" for event partitioning.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// WithNow overrides the clock used for "today" and report timestamps.
func WithNow(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler builds the router over svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:      svc,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:    func() bool { return true },
		location: time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.router = h.routes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", h.handleReadyz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Use(h.requireReady)

		r.Route("/people", func(r chi.Router) {
			r.Get("/", h.handleListPeople)
			r.Post("/", h.handleAddPerson)
			r.Post("/batch", h.handleAddPeople)
			r.Get("/{id}", h.handleGetPerson)
			r.Delete("/{id}", h.handleRemovePerson)
		})
		r.Route("/events", func(r chi.Router) {
			r.Get("/", h.handleListEvents)
			r.Post("/", h.handleAddEvent)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetEvent)
				r.Patch("/", h.handleUpdateEvent)
				r.Delete("/", h.handleRemoveEvent)
				r.Get("/people", h.handlePeopleForEvent)
				r.Get("/stats", h.handleEventStats)
				r.Put("/attendance/{personId}", h.handleSetAttending)
				r.Put("/payments/{personId}", h.handleSetPaid)
				r.Get("/report.xlsx", h.handleReport(report.FormatXLSX))
				r.Get("/report.pdf", h.handleReport(report.FormatPDF))
			})
		})
		r.Get("/badges", h.handleBadges)
		r.Get("/settings", h.handleGetSettings)
		r.Put("/settings", h.handleUpdateSettings)
		r.Post("/reset", h.handleReset)
	})
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil && !h.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.ready() {
			writeError(w, http.StatusServiceUnavailable, "service is starting")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	return true
}

func forced(r *http.Request) bool {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return force
}

// writeServiceError maps service errors onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var validation core.ValidationError
	var duplicate core.DuplicateNameError
	var notFound domain.ErrNotFound
	var blocked domain.RuleViolationError
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "fields": validation.Fields})
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "existing": duplicate.Existing})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "violations": blocked.Result.Violations})
	case errors.Is(err, domain.ErrContractViolation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
