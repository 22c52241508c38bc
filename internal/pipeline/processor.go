// Package pipeline runs one capture loop per camera. Each loop reads frames,
// classifies faces through the shared identity registry while detection is
// active, annotates them and hands every frame to a publisher.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/facematch"
	"github.com/kozaktomas/sauron/internal/imaging"
	"github.com/kozaktomas/sauron/internal/registry"
)

// Config holds the collaborators of a Processor.
type Config struct {
	CameraID  string
	Source    capture.Source
	Provider  embedding.Provider
	Registry  *registry.Registry
	Publisher Publisher
	Retry     capture.RetryPolicy
	SortBoxes bool
	Logger    *slog.Logger
}

// Stats are cumulative counters of a processor.
type Stats struct {
	FramesRead      uint64 `json:"frames_read"`
	ReadFailures    uint64 `json:"read_failures"`
	FramesProcessed uint64 `json:"frames_processed"`
	Faces           uint64 `json:"faces"`
	NewIdentities   uint64 `json:"new_identities"`
	Matches         uint64 `json:"matches"`
	DetectErrors    uint64 `json:"detect_errors"`
}

// Processor is the capture loop of one camera. Detection starts disabled.
type Processor struct {
	cfg    Config
	logger *slog.Logger

	active  atomic.Bool
	running atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool // set by Stop, possibly before Run starts

	framesRead      atomic.Uint64
	readFailures    atomic.Uint64
	framesProcessed atomic.Uint64
	faces           atomic.Uint64
	newIdentities   atomic.Uint64
	matches         atomic.Uint64
	detectErrors    atomic.Uint64
}

// NewProcessor validates cfg and creates an idle processor.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Source == nil {
		return nil, errors.New("processor requires a source")
	}
	if cfg.Provider == nil {
		return nil, errors.New("processor requires an embedding provider")
	}
	if cfg.Registry == nil {
		return nil, errors.New("processor requires a registry")
	}
	if cfg.CameraID == "" {
		cfg.CameraID = cfg.Source.ID()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Processor{
		cfg:    cfg,
		logger: cfg.Logger.With("camera", cfg.CameraID),
	}, nil
}

// CameraID returns the camera this processor reads.
func (p *Processor) CameraID() string {
	return p.cfg.CameraID
}

// SetActive enables or disables detection from the next frame on.
func (p *Processor) SetActive(active bool) {
	if p.active.Swap(active) != active {
		p.logger.Info("detection toggled", "active", active)
	}
}

// Toggle flips detection and returns the new state.
func (p *Processor) Toggle() bool {
	for {
		old := p.active.Load()
		if p.active.CompareAndSwap(old, !old) {
			p.logger.Info("detection toggled", "active", !old)
			return !old
		}
	}
}

// Active reports whether detection is enabled.
func (p *Processor) Active() bool {
	return p.active.Load()
}

// Running reports whether Run is executing.
func (p *Processor) Running() bool {
	return p.running.Load()
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() Stats {
	return Stats{
		FramesRead:      p.framesRead.Load(),
		ReadFailures:    p.readFailures.Load(),
		FramesProcessed: p.framesProcessed.Load(),
		Faces:           p.faces.Load(),
		NewIdentities:   p.newIdentities.Load(),
		Matches:         p.matches.Load(),
		DetectErrors:    p.detectErrors.Load(),
	}
}

// Run captures until ctx is cancelled, Stop is called or the source is
// exhausted, and closes the source on return. It returns an error only when
// the source is lost under a retry budget.
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("processor already running")
	}
	defer p.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	if p.stopped {
		cancel()
	}
	p.mu.Unlock()
	defer cancel()

	src := p.cfg.Source
	defer func() {
		if err := src.Close(); err != nil {
			p.logger.Warn("failed to close source", "error", err)
		}
	}()

	p.logger.Info("processor started", "retry", p.cfg.Retry.String())
	onFail := func(attempt int, err error) {
		p.readFailures.Add(1)
		p.logger.Debug("frame read failed", "attempt", attempt, "error", err)
	}

	for {
		if ctx.Err() != nil {
			p.logger.Info("processor stopped")
			return nil
		}

		frame, err := capture.ReadWithRetry(ctx, src, p.cfg.Retry, onFail)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			p.logger.Info("source exhausted")
			return nil
		case ctx.Err() != nil, errors.Is(err, capture.ErrClosed):
			p.logger.Info("processor stopped")
			return nil
		default:
			p.logger.Error("source lost", "error", err)
			return fmt.Errorf("camera %s: %w", p.cfg.CameraID, err)
		}
		p.framesRead.Add(1)
		frame.Source = p.cfg.CameraID

		if p.active.Load() {
			p.process(ctx, frame)
		}
		p.cfg.Publisher.Publish(frame)
	}
}

// Stop ends Run at the next iteration boundary. A Stop issued before Run
// makes Run close the source and return immediately.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
}

// process classifies every face of frame and annotates it in place.
func (p *Processor) process(ctx context.Context, frame *capture.Frame) {
	faces, err := embedding.DetectAndEmbed(ctx, p.cfg.Provider, frame.Image)
	if err != nil {
		if ctx.Err() == nil {
			p.detectErrors.Add(1)
			p.logger.Warn("face detection failed", "frame", frame.Index, "error", err)
		}
		return
	}
	p.framesProcessed.Add(1)
	if len(faces) == 0 {
		return
	}

	if p.cfg.SortBoxes {
		facematch.SortByBox(faces, func(f embedding.Face) image.Rectangle { return f.Box })
	}

	// Crop everything before drawing so boxes never bleed into evidence.
	crops := make([]image.Image, len(faces))
	for i, f := range faces {
		crops[i] = imaging.Crop(frame.Image, f.Box)
	}

	labels := make([]string, len(faces))
	for i, f := range faces {
		m, err := p.cfg.Registry.MatchOrRegister(f.Embedding, crops[i])
		if err != nil {
			p.logger.Warn("face not classified", "frame", frame.Index, "error", err)
			continue
		}
		p.faces.Add(1)
		if m.IsNew {
			p.newIdentities.Add(1)
			p.logger.Info("new identity", "identity", m.ID, "frame", frame.Index)
		} else {
			p.matches.Add(1)
		}
		labels[i] = fmt.Sprintf("ID: %d", m.ID)
	}

	for i, f := range faces {
		if labels[i] == "" {
			continue
		}
		imaging.Annotate(frame.Image, f.Box, labels[i], imaging.IdentityColor)
	}
}
