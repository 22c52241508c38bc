package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/detectlog"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/pipeline"
	"github.com/kozaktomas/sauron/internal/verify"
)

// SourceLookup returns the opener of a camera; unknown cameras wrap pipeline.ErrUnknownCamera.
type SourceLookup func(camera string) (pipeline.SourceOpener, error)

// VerifierDeps holds what every verifier job needs.
type VerifierDeps struct {
	Provider    embedding.Provider
	Sink        detectlog.Sink
	Sources     SourceLookup
	Publisher   pipeline.Publisher
	Threshold   float64
	EvidenceDir string
	Retry       capture.RetryPolicy
	Logger      *slog.Logger
}

// VerifiersHandler constructs and supervises live verifier jobs.
type VerifiersHandler struct {
	deps       VerifierDeps
	jobManager *JobManager
	logger     *slog.Logger
}

// NewVerifiersHandler creates a new verifiers handler.
func NewVerifiersHandler(deps VerifierDeps, jm *JobManager) *VerifiersHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifiersHandler{deps: deps, jobManager: jm, logger: logger}
}

// StartVerifierRequest represents a verifier start request.
type StartVerifierRequest struct {
	Camera     string `json:"camera"`
	TargetPath string `json:"target_path"`
	Label      string `json:"label"`
}

// Start constructs a verifier and runs it in the background. Construction
// failures are reported here and no job is created.
func (h *VerifiersHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartVerifierRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Camera == "" || req.TargetPath == "" {
		respondError(w, http.StatusBadRequest, "camera and target_path are required")
		return
	}

	open, err := h.deps.Sources(req.Camera)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	target, err := verify.LoadTarget(r.Context(), req.TargetPath, req.Label, h.deps.Provider)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	src, err := open(r.Context())
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	opts := []verify.LiveOption{
		verify.WithRetry(h.deps.Retry),
		verify.WithEvidenceDir(h.deps.EvidenceDir),
		verify.WithLogger(h.logger),
	}
	if h.deps.Threshold > 0 {
		opts = append(opts, verify.WithThreshold(h.deps.Threshold))
	}
	if h.deps.Publisher != nil {
		opts = append(opts, verify.WithPublisher(h.deps.Publisher))
	}
	v, err := verify.NewLiveVerifier(target, src, h.deps.Provider, h.deps.Sink, opts...)
	if err != nil {
		src.Close()
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String(), req.Camera, target.Label, target.ImagePath)
	ctx, cancel := context.WithCancel(context.Background())
	job.setCancel(cancel)
	go h.runVerifierJob(ctx, job, v)

	h.logger.Info("verifier job started", "job", job.ID, "camera", sanitizeForLog(req.Camera), "label", sanitizeForLog(target.Label))
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"camera": req.Camera,
		"label":  target.Label,
		"status": string(JobStatusPending),
	})
}

// List returns all verifier jobs.
func (h *VerifiersHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobManager.ListJobs()
	views := make([]VerifierJobView, len(jobs))
	for i, job := range jobs {
		views[i] = job.View()
	}
	respondJSON(w, http.StatusOK, views)
}

// Status returns the status of a verifier job.
func (h *VerifiersHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams job events via SSE.
func (h *VerifiersHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*VerifierJob).View()
		},
	)
}

// Cancel stops a running verifier, releasing its camera. Finished jobs are removed.
func (h *VerifiersHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}

	if isJobTerminal(job.GetStatus()) {
		h.jobManager.DeleteJob(job.ID)
		respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (h *VerifiersHandler) lookup(w http.ResponseWriter, r *http.Request) *VerifierJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// runVerifierJob runs the verifier in the background.
func (h *VerifiersHandler) runVerifierJob(ctx context.Context, job *VerifierJob, v *verify.LiveVerifier) {
	defer job.Cancel()

	job.setStatus(JobStatusRunning)
	job.SendEvent(JobEvent{Type: "started", Message: "Verifier started"})

	det, err := v.Run(ctx)

	switch {
	case errors.Is(err, context.Canceled):
		job.setStatus(JobStatusCancelled)
		job.SendEvent(JobEvent{Type: "cancelled", Message: "Verifier cancelled"})
		return
	case err != nil && det == nil:
		h.logger.Warn("verifier job failed", "job", job.ID, "error", err)
		job.mu.Lock()
		job.Error = err.Error()
		job.mu.Unlock()
		job.setStatus(JobStatusFailed)
		job.SendEvent(JobEvent{Type: "failed", Message: err.Error()})
		return
	}

	job.mu.Lock()
	job.Result = det
	if err != nil {
		job.Error = err.Error()
	}
	job.mu.Unlock()

	if det != nil {
		job.SendEvent(JobEvent{Type: "detected", Message: det.Event.Label + " detected", Data: det})
	}
	job.setStatus(JobStatusCompleted)
	job.SendEvent(JobEvent{Type: "completed", Data: job.View()})
}
