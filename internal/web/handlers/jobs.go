package handlers

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/sauron/internal/constants"
	"github.com/kozaktomas/sauron/internal/verify"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// VerifierJob is a live verifier running in the background.
type VerifierJob struct {
	EventBroadcaster

	ID          string
	Camera      string
	Label       string
	TargetPath  string
	Status      JobStatus
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *verify.Detection
}

// VerifierJobView is the JSON form of a VerifierJob.
type VerifierJobView struct {
	ID          string            `json:"id"`
	Camera      string            `json:"camera"`
	Label       string            `json:"label"`
	TargetPath  string            `json:"target_path"`
	Status      JobStatus         `json:"status"`
	Detected    bool              `json:"detected"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *verify.Detection `json:"result,omitempty"`
}

// View returns a consistent snapshot of the job.
func (j *VerifierJob) View() VerifierJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return VerifierJobView{
		ID:          j.ID,
		Camera:      j.Camera,
		Label:       j.Label,
		TargetPath:  j.TargetPath,
		Status:      j.Status,
		Detected:    j.Result != nil,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *VerifierJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// setStatus moves the job to status unless it already finished.
func (j *VerifierJob) setStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if isJobTerminal(j.Status) {
		return
	}
	j.Status = status
	if isJobTerminal(status) {
		now := time.Now()
		j.CompletedAt = &now
	}
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via its context.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

func (b *EventBroadcaster) setCancel(cancel context.CancelFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancel = cancel
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages verifier jobs.
type JobManager struct {
	jobs map[string]*VerifierJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*VerifierJob),
	}
}

// CreateJob creates a new pending verifier job.
func (m *JobManager) CreateJob(id, camera, label, targetPath string) *VerifierJob {
	job := &VerifierJob{
		ID:         id,
		Camera:     camera,
		Label:      label,
		TargetPath: targetPath,
		Status:     JobStatusPending,
		StartedAt:  time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *VerifierJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// DeleteJob removes a job.
func (m *JobManager) DeleteJob(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
}

// ListJobs returns all jobs, oldest first.
func (m *JobManager) ListJobs() []*VerifierJob {
	m.mu.RLock()
	jobs := make([]*VerifierJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].StartedAt.Equal(jobs[j].StartedAt) {
			return jobs[i].StartedAt.Before(jobs[j].StartedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	return jobs
}
