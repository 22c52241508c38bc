package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/registry"
)

// ErrUnknownCamera is returned for a camera ID that was never added.
var ErrUnknownCamera = errors.New("unknown camera")

// SourceOpener opens a fresh source for a camera. It is called on every start.
type SourceOpener func(ctx context.Context) (capture.Source, error)

// Camera describes one managed capture device.
type Camera struct {
	ID   string
	Open SourceOpener
}

// Status describes a managed camera.
type Status struct {
	ID        string `json:"id"`
	Running   bool   `json:"running"`
	Active    bool   `json:"active"`
	LastError string `json:"last_error,omitempty"`
	Stats     Stats  `json:"stats"`
}

// ManagerConfig holds what every processor of a Manager shares.
type ManagerConfig struct {
	Provider  embedding.Provider
	Registry  *registry.Registry
	Publisher Publisher
	Retry     capture.RetryPolicy
	SortBoxes bool
	Logger    *slog.Logger
}

type managedCamera struct {
	cam    Camera
	active bool // desired detection state, applied on start
	proc   *Processor
	done   chan struct{}
	last   Stats
	err    error

	opening context.CancelFunc // set while Start opens the source
}

// Manager owns the processors of all cameras and is the control surface for
// starting, stopping and toggling them.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu      sync.Mutex
	base    context.Context
	cameras map[string]*managedCamera
	order   []string
}

// NewManager creates a manager with no cameras.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		logger:  cfg.Logger,
		base:    context.Background(),
		cameras: make(map[string]*managedCamera),
	}
}

// Add registers a camera. Adding an existing ID is an error.
func (m *Manager) Add(cam Camera) error {
	if cam.ID == "" || cam.Open == nil {
		return errors.New("camera requires an ID and an opener")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cameras[cam.ID]; ok {
		return fmt.Errorf("camera %s already added", cam.ID)
	}
	m.cameras[cam.ID] = &managedCamera{cam: cam}
	m.order = append(m.order, cam.ID)
	return nil
}

// Opener returns the source opener of a camera, for verifiers that need
// their own capture handle.
func (m *Manager) Opener(id string) (SourceOpener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.cameras[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	return mc.cam.Open, nil
}

// Start opens the camera source and launches its processor. Starting a
// running or opening camera is a no-op. Open failures are returned and
// nothing is started. The source is opened without holding the manager lock;
// a Stop during the open abandons the start.
func (m *Manager) Start(ctx context.Context, id string) error {
	m.mu.Lock()
	mc, ok := m.cameras[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	if mc.proc != nil || mc.opening != nil {
		m.mu.Unlock()
		return nil
	}
	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()
	mc.opening = cancelOpen
	m.mu.Unlock()

	src, err := mc.cam.Open(openCtx)

	m.mu.Lock()
	defer m.mu.Unlock()
	aborted := mc.opening == nil
	mc.opening = nil
	if err != nil {
		if aborted {
			return nil
		}
		return err
	}
	if aborted {
		src.Close()
		m.logger.Info("camera start abandoned", "camera", id)
		return nil
	}

	proc, err := NewProcessor(Config{
		CameraID:  id,
		Source:    src,
		Provider:  m.cfg.Provider,
		Registry:  m.cfg.Registry,
		Publisher: m.cfg.Publisher,
		Retry:     m.cfg.Retry,
		SortBoxes: m.cfg.SortBoxes,
		Logger:    m.logger,
	})
	if err != nil {
		src.Close()
		return err
	}
	proc.SetActive(mc.active)

	done := make(chan struct{})
	mc.proc = proc
	mc.done = done
	mc.err = nil

	base := m.base
	go func() {
		err := proc.Run(base)
		m.mu.Lock()
		mc.err = err
		mc.last = proc.Stats()
		if mc.proc == proc {
			mc.proc = nil
		}
		m.mu.Unlock()
		close(done)
	}()
	return nil
}

// Stop stops a camera and waits for its loop to release the source.
// Stopping a stopped camera is a no-op; stopping an opening camera cancels
// the open.
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	mc, ok := m.cameras[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	if mc.opening != nil {
		mc.opening()
		mc.opening = nil
	}
	proc, done := mc.proc, mc.done
	m.mu.Unlock()

	if proc == nil {
		return nil
	}
	proc.Stop()
	<-done
	return nil
}

// SetActive enables or disables detection on one camera. The state is kept
// across restarts.
func (m *Manager) SetActive(id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.cameras[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	mc.active = active
	if mc.proc != nil {
		mc.proc.SetActive(active)
	}
	return nil
}

// ToggleAll disables detection everywhere if any camera has it enabled,
// otherwise enables it everywhere. It returns the new state.
func (m *Manager) ToggleAll() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	anyActive := false
	for _, mc := range m.cameras {
		if mc.active {
			anyActive = true
			break
		}
	}
	next := !anyActive
	for _, mc := range m.cameras {
		mc.active = next
		if mc.proc != nil {
			mc.proc.SetActive(next)
		}
	}
	m.logger.Info("detection toggled on all cameras", "active", next)
	return next
}

// StopAll stops every running camera.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range ids {
		_ = m.Stop(id)
	}
}

// Status returns the status of one camera.
func (m *Manager) Status(id string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.cameras[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownCamera, id)
	}
	return mc.status(), nil
}

// List returns the status of every camera in the order they were added.
func (m *Manager) List() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.cameras[id].status())
	}
	return out
}

func (mc *managedCamera) status() Status {
	s := Status{ID: mc.cam.ID, Active: mc.active, Stats: mc.last}
	if mc.proc != nil {
		s.Running = true
		s.Stats = mc.proc.Stats()
	}
	if mc.err != nil {
		s.LastError = mc.err.Error()
	}
	return s
}

// Run starts every camera, blocks until ctx is cancelled and then stops them.
// Processors started later through Start also stop when ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.base = ctx
	ids := append([]string(nil), m.order...)
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Start(ctx, id); err != nil {
			m.StopAll()
			return fmt.Errorf("failed to start camera %s: %w", id, err)
		}
	}

	<-ctx.Done()
	m.StopAll()
	return nil
}
