package handlers

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/sauron/internal/imaging"
	"github.com/kozaktomas/sauron/internal/pipeline"
)

const (
	mjpegBoundary = "frame"
	maxFrameSize  = 4096
)

// frameSize reads the optional ?size= bound on the longer image side; 0 keeps
// frames at capture size.
func frameSize(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || n <= 0 {
		return 0
	}
	return min(n, maxFrameSize)
}

// StreamHandler serves published frames as JPEG snapshots and MJPEG streams.
type StreamHandler struct {
	frames *pipeline.LatestFrames
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(frames *pipeline.LatestFrames, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{frames: frames, logger: logger}
}

// Snapshot returns the latest frame of a camera as JPEG, optionally scaled
// down with ?size=.
func (h *StreamHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	frame, ok := h.frames.Latest(id)
	if !ok {
		respondError(w, http.StatusNotFound, "no frame available")
		return
	}

	data, err := imaging.JPEGBytes(imaging.ScaleToFit(frame.Image, frameSize(r)))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode frame")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Index", strconv.Itoa(frame.Index))
	w.Write(data)
}

// Stream sends frames as multipart/x-mixed-replace until the client goes
// away. Slow clients skip frames.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	id := chi.URLParam(r, "id")
	size := frameSize(r)
	frames, unsubscribe := h.frames.Subscribe(id)
	defer unsubscribe()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if frame, ok := h.frames.Latest(id); ok {
		if err := writeMJPEGPart(w, imaging.ScaleToFit(frame.Image, size)); err != nil {
			return
		}
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeMJPEGPart(w, imaging.ScaleToFit(frame.Image, size)); err != nil {
				h.logger.Debug("stream client gone", "camera", sanitizeForLog(id), "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeMJPEGPart(w io.Writer, img image.Image) error {
	data, err := imaging.JPEGBytes(img)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\r\n")
	return err
}
