package verify

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/constants"
	"github.com/kozaktomas/sauron/internal/detectlog"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/facematch"
	"github.com/kozaktomas/sauron/internal/imaging"
	"github.com/kozaktomas/sauron/internal/pipeline"
)

// Detection is the single result of a live verifier.
type Detection struct {
	Event      detectlog.Event `json:"event"`
	FrameIndex int             `json:"frame_index"`
	Box        image.Rectangle `json:"box"`
	Distance   float64         `json:"distance"`
}

// LiveOption configures a LiveVerifier.
type LiveOption func(*LiveVerifier)

// WithThreshold sets the maximum distance accepted as the target.
func WithThreshold(t float64) LiveOption {
	return func(v *LiveVerifier) { v.threshold = t }
}

// WithEvidenceDir stores an annotated snapshot of the matching frame in dir.
// Without it the event points at the target image.
func WithEvidenceDir(dir string) LiveOption {
	return func(v *LiveVerifier) { v.evidenceDir = dir }
}

// WithRetry sets the capture retry policy.
func WithRetry(p capture.RetryPolicy) LiveOption {
	return func(v *LiveVerifier) { v.retry = p }
}

// WithPublisher receives every frame read, the matching one annotated.
func WithPublisher(p pipeline.Publisher) LiveOption {
	return func(v *LiveVerifier) { v.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) LiveOption {
	return func(v *LiveVerifier) { v.logger = l }
}

// LiveVerifier watches one source for one target and stops at the first match.
// It owns its source and closes it when Run returns.
type LiveVerifier struct {
	target    *Target
	source    capture.Source
	provider  embedding.Provider
	sink      detectlog.Sink
	threshold float64

	evidenceDir string
	retry       capture.RetryPolicy
	publisher   pipeline.Publisher
	logger      *slog.Logger
	now         func() time.Time

	started atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewLiveVerifier creates a verifier. On error the source is left untouched.
func NewLiveVerifier(target *Target, src capture.Source, provider embedding.Provider, sink detectlog.Sink, opts ...LiveOption) (*LiveVerifier, error) {
	switch {
	case target == nil || len(target.Reference) == 0:
		return nil, &ConstructionError{Kind: KindInvalidConfig, Err: errors.New("target with a reference embedding is required")}
	case src == nil:
		return nil, &ConstructionError{Kind: KindInvalidConfig, Err: errors.New("frame source is required")}
	case provider == nil:
		return nil, &ConstructionError{Kind: KindInvalidConfig, Err: errors.New("embedding provider is required")}
	}
	if sink == nil {
		sink = detectlog.Discard
	}

	v := &LiveVerifier{
		target:    target,
		source:    src,
		provider:  provider,
		sink:      sink,
		threshold: constants.DefaultSimilarityThreshold,
		publisher: pipeline.PublisherFunc(func(*capture.Frame) {}),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.publisher == nil {
		v.publisher = pipeline.PublisherFunc(func(*capture.Frame) {})
	}
	if v.threshold <= 0 {
		return nil, &ConstructionError{Kind: KindInvalidConfig, Err: fmt.Errorf("threshold must be positive, got %v", v.threshold)}
	}
	v.logger = v.logger.With("source", src.ID(), "target", target.Label)
	return v, nil
}

// Target returns the enrolled target.
func (v *LiveVerifier) Target() *Target {
	return v.target
}

// SourceID returns the ID of the watched source.
func (v *LiveVerifier) SourceID() string {
	return v.source.ID()
}

// Stop ends Run at the next iteration boundary. Stopping before Run makes
// Run return context.Canceled without reading a frame.
func (v *LiveVerifier) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopped = true
	if v.cancel != nil {
		v.cancel()
	}
}

// Run reads frames until the target is seen. It returns the detection, or
// (nil, nil) when the source is exhausted first. A cancelled context or Stop
// yields the context error. Run may be called once.
func (v *LiveVerifier) Run(ctx context.Context) (*Detection, error) {
	if !v.started.CompareAndSwap(false, true) {
		return nil, errors.New("verifier already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	v.mu.Lock()
	v.cancel = cancel
	if v.stopped {
		cancel()
	}
	v.mu.Unlock()
	defer cancel()

	defer func() {
		if err := v.source.Close(); err != nil {
			v.logger.Warn("failed to close source", "error", err)
		}
	}()

	v.logger.Info("verifier started", "threshold", v.threshold)
	onFail := func(attempt int, err error) {
		v.logger.Debug("frame read failed", "attempt", attempt, "error", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := capture.ReadWithRetry(ctx, v.source, v.retry, onFail)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			v.logger.Info("source exhausted without detection")
			return nil, nil
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("source %s: %w", v.source.ID(), err)
		}

		det := v.check(ctx, frame)
		v.publisher.Publish(frame)
		if det == nil {
			continue
		}

		v.logger.Info("target detected", "frame", det.FrameIndex, "distance", det.Distance, "evidence", det.Event.EvidencePath)
		if err := v.sink.Append(ctx, det.Event); err != nil {
			return det, fmt.Errorf("failed to log detection: %w", err)
		}
		return det, nil
	}
}

// check looks for the target in frame. The first face within threshold, in
// detection order, is the match; on a match the frame is annotated and the
// evidence snapshot written.
func (v *LiveVerifier) check(ctx context.Context, frame *capture.Frame) *Detection {
	faces, err := embedding.DetectAndEmbed(ctx, v.provider, frame.Image)
	if err != nil {
		if ctx.Err() == nil {
			v.logger.Warn("face detection failed", "frame", frame.Index, "error", err)
		}
		return nil
	}

	for _, f := range faces {
		d := embedding.EuclideanDistance(f.Embedding, v.target.Reference)
		if d >= v.threshold {
			continue
		}

		imaging.Annotate(frame.Image, f.Box, v.target.Label, imaging.TargetColor)
		ts := frame.Timestamp
		if ts.IsZero() {
			ts = v.now()
		}
		return &Detection{
			Event: detectlog.Event{
				SourceID:     v.source.ID(),
				Label:        v.target.Label,
				Timestamp:    ts,
				EvidencePath: v.writeEvidence(frame, ts),
				Distance:     d,
				Embedding:    f.Embedding.Clone(),
			},
			FrameIndex: frame.Index,
			Box:        f.Box,
			Distance:   d,
		}
	}
	return nil
}

// writeEvidence stores the annotated frame and returns its path. When no
// evidence dir is set, or the write fails, the target image path is returned.
func (v *LiveVerifier) writeEvidence(frame *capture.Frame, ts time.Time) string {
	if v.evidenceDir == "" {
		return v.target.ImagePath
	}
	if err := os.MkdirAll(v.evidenceDir, 0o755); err != nil {
		v.logger.Warn("failed to create evidence dir", "error", err)
		return v.target.ImagePath
	}

	name := fmt.Sprintf("%s_%s_%s_%d.jpg",
		facematch.LabelSlug(v.target.Label),
		facematch.LabelSlug(v.source.ID()),
		ts.Format("20060102_150405"),
		frame.Index)
	path := filepath.Join(v.evidenceDir, name)
	if err := imaging.WriteJPEGFile(path, frame.Image); err != nil {
		v.logger.Warn("failed to write evidence", "error", err)
		return v.target.ImagePath
	}
	return path
}
