package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/sauron/internal/pipeline"
)

// CamerasHandler exposes the processor manager: start, stop and detection toggles.
type CamerasHandler struct {
	manager *pipeline.Manager
	logger  *slog.Logger
}

// NewCamerasHandler creates a new cameras handler.
func NewCamerasHandler(m *pipeline.Manager, logger *slog.Logger) *CamerasHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CamerasHandler{manager: m, logger: logger}
}

// List returns the status of every camera.
func (h *CamerasHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.manager.List())
}

// Get returns the status of one camera.
func (h *CamerasHandler) Get(w http.ResponseWriter, r *http.Request) {
	st, err := h.manager.Status(chi.URLParam(r, "id"))
	if err != nil {
		h.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

// Start starts a camera processor.
func (h *CamerasHandler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Start(r.Context(), id); err != nil {
		h.respondManagerError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// Stop stops a camera processor and releases its capture device.
func (h *CamerasHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Stop(id); err != nil {
		h.respondManagerError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// DetectionRequest switches detection on or off.
type DetectionRequest struct {
	Active *bool `json:"active"`
}

// SetDetection enables or disables face detection for one camera.
func (h *CamerasHandler) SetDetection(w http.ResponseWriter, r *http.Request) {
	var req DetectionRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Active == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.manager.SetActive(id, *req.Active); err != nil {
		h.respondManagerError(w, err)
		return
	}
	h.respondStatus(w, id)
}

// ToggleAll flips detection for all cameras at once.
func (h *CamerasHandler) ToggleAll(w http.ResponseWriter, r *http.Request) {
	active := h.manager.ToggleAll()
	respondJSON(w, http.StatusOK, map[string]any{
		"active":  active,
		"cameras": h.manager.List(),
	})
}

func (h *CamerasHandler) respondStatus(w http.ResponseWriter, id string) {
	st, err := h.manager.Status(id)
	if err != nil {
		h.respondManagerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (h *CamerasHandler) respondManagerError(w http.ResponseWriter, err error) {
	if errors.Is(err, pipeline.ErrUnknownCamera) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Warn("camera operation failed", "error", err)
	respondError(w, http.StatusUnprocessableEntity, err.Error())
}
