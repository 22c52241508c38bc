package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/sauron/internal/registry"
)

// IdentitiesHandler serves the identity registry.
type IdentitiesHandler struct {
	registry *registry.Registry
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(reg *registry.Registry) *IdentitiesHandler {
	return &IdentitiesHandler{registry: reg}
}

// IdentityResponse is one identity without its embedding.
type IdentityResponse struct {
	ID          int       `json:"id"`
	SampleCount int       `json:"sample_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func toIdentityResponse(id registry.Identity) IdentityResponse {
	return IdentityResponse{ID: id.ID, SampleCount: id.SampleCount, CreatedAt: id.CreatedAt}
}

// List returns every identity in creation order.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	ids := h.registry.Identities()
	out := make([]IdentityResponse, len(ids))
	for i, id := range ids {
		out[i] = toIdentityResponse(id)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identities": out,
		"count":      len(out),
		"threshold":  h.registry.Threshold(),
	})
}

// Get returns one identity.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid identity ID")
		return
	}

	ident, ok := h.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, toIdentityResponse(ident))
}
