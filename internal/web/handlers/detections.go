package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kozaktomas/sauron/internal/database/postgres"
	"github.com/kozaktomas/sauron/internal/detectlog"
)

const (
	defaultDetectionsLimit = 100
	maxDetectionsLimit     = 1000
)

// DetectionLister reads stored detections, newest first.
type DetectionLister interface {
	ListDetections(ctx context.Context, limit int) ([]postgres.Detection, error)
}

// DetectionsHandler serves the detection log for external viewers.
type DetectionsHandler struct {
	logPath string
	db      DetectionLister
	logger  *slog.Logger
}

// NewDetectionsHandler creates a handler reading the CSV log at logPath.
// When db is set it is used instead.
func NewDetectionsHandler(logPath string, db DetectionLister, logger *slog.Logger) *DetectionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectionsHandler{logPath: logPath, db: db, logger: logger}
}

// DetectionResponse is one logged detection.
type DetectionResponse struct {
	SourceID     string    `json:"source_id"`
	Label        string    `json:"label"`
	Timestamp    time.Time `json:"timestamp"`
	EvidencePath string    `json:"evidence_path"`
	Distance     *float64  `json:"distance,omitempty"`
}

// List returns detections, newest first.
func (h *DetectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultDetectionsLimit, maxDetectionsLimit)

	if h.db != nil {
		rows, err := h.db.ListDetections(r.Context(), limit)
		if err != nil {
			h.logger.Error("failed to list detections", "error", err)
			respondError(w, http.StatusInternalServerError, "failed to list detections")
			return
		}
		out := make([]DetectionResponse, len(rows))
		for i, d := range rows {
			dist := d.Distance
			out[i] = DetectionResponse{
				SourceID:     d.SourceID,
				Label:        d.Label,
				Timestamp:    d.DetectedAt,
				EvidencePath: d.EvidencePath,
				Distance:     &dist,
			}
		}
		respondJSON(w, http.StatusOK, out)
		return
	}

	events, err := detectlog.ReadAll(h.logPath)
	if err != nil {
		h.logger.Error("failed to read detection log", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to read detection log")
		return
	}

	out := make([]DetectionResponse, 0, min(len(events), limit))
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		ev := events[i]
		out = append(out, DetectionResponse{
			SourceID:     ev.SourceID,
			Label:        ev.Label,
			Timestamp:    ev.Timestamp,
			EvidencePath: ev.EvidencePath,
		})
	}
	respondJSON(w, http.StatusOK, out)
}
