// Package consoleapi exposes the audit-log console over HTTP with chi.
package consoleapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	auditview "github.com/kafeiih/go-auditview"
	"github.com/kafeiih/go-auditview/console"
)

const maxRequestBody = 1 << 20

// Handler serves the console endpoints.
type Handler struct {
	ctrl   *console.Controller
	sched  *console.Scheduler
	logger *slog.Logger

	// baseCtx outlives individual requests; the auto-refresh loop runs on it.
	baseCtx context.Context
}

// NewHandler creates a Handler. baseCtx bounds the auto-refresh loop started
// through the API and should be cancelled on shutdown.
func NewHandler(baseCtx context.Context, ctrl *console.Controller, sched *console.Scheduler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctrl: ctrl, sched: sched, logger: logger, baseCtx: baseCtx}
}

// Routes returns the chi router for the console.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestLogger(h.logger))

	r.Route("/v1/logs", func(r chi.Router) {
		r.Get("/", h.getView)
		r.Get("/filter", h.getFilter)
		r.Put("/filter", h.putFilter)
		r.Post("/refresh", h.postRefresh)
		r.Post("/selection", h.postSelection)
		r.Delete("/selection", h.deleteSelection)
		r.Get("/selection/payload", h.getPayload)
		r.Put("/auto-refresh", h.putAutoRefresh)
	})

	return r
}

func (h *Handler) getView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

func (h *Handler) getFilter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Filter())
}

// putFilter applies a new filter. Fetch failures land in the view's error
// banner, so the response is 200 either way.
func (h *Handler) putFilter(w http.ResponseWriter, r *http.Request) {
	var spec auditview.FilterSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	_ = h.ctrl.ApplyFilter(r.Context(), spec)
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

func (h *Handler) postRefresh(w http.ResponseWriter, r *http.Request) {
	_ = h.sched.RefreshNow(r.Context())
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

type selectionRequest struct {
	Key string `json:"key"`
}

func (h *Handler) postSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.ctrl.Select(req.Key)
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

func (h *Handler) deleteSelection(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ClearSelection()
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

func (h *Handler) getPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.ctrl.SelectedPayload()
	if errors.Is(err, auditview.ErrNoSelection) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("failed to render log payload", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render payload")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

type autoRefreshRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *Handler) putAutoRefresh(w http.ResponseWriter, r *http.Request) {
	var req autoRefreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	h.sched.SetEnabled(h.baseCtx, *req.Enabled)
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// ---------- helpers ----------

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
