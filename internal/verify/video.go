package verify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/constants"
	"github.com/kozaktomas/sauron/internal/imaging"
)

// ScanOption configures a VideoScanner.
type ScanOption func(*VideoScanner)

// WithScanThreshold sets the correlation peak a frame must exceed.
func WithScanThreshold(t float64) ScanOption {
	return func(s *VideoScanner) { s.threshold = t }
}

// WithScanRetry sets the retry policy for failed frame reads.
func WithScanRetry(p capture.RetryPolicy) ScanOption {
	return func(s *VideoScanner) { s.retry = p }
}

// WithScanLogger sets the logger.
func WithScanLogger(l *slog.Logger) ScanOption {
	return func(s *VideoScanner) { s.logger = l }
}

// VideoScanner finds every frame of a recorded video that contains the target
// image, by normalized cross-correlation of luminance.
type VideoScanner struct {
	path      string
	template  *imaging.Template
	threshold float64
	retry     capture.RetryPolicy
	logger    *slog.Logger
}

// NewVideoScanner loads the target image at path.
func NewVideoScanner(path string, opts ...ScanOption) (*VideoScanner, error) {
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, &ConstructionError{Kind: KindUnreadableImage, Path: path, Err: err}
	}
	gray := imaging.ToGray(img)
	if gray.Bounds().Empty() {
		return nil, &ConstructionError{Kind: KindUnreadableImage, Path: path, Err: errors.New("empty image")}
	}

	s := &VideoScanner{
		path:      path,
		template:  imaging.NewTemplate(gray),
		threshold: constants.DefaultTemplateThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.threshold <= 0 || s.threshold > 1 {
		return nil, &ConstructionError{Kind: KindInvalidConfig, Path: path, Err: fmt.Errorf("template threshold must be in (0, 1], got %v", s.threshold)}
	}
	return s, nil
}

// Threshold returns the match threshold.
func (s *VideoScanner) Threshold() float64 {
	return s.threshold
}

// Scan reads src to the end and returns the indices of matching frames in
// order. It never stops at the first match. progress, when set, is called
// after each frame with the number of frames scanned so far. src is closed
// on return.
func (s *VideoScanner) Scan(ctx context.Context, src capture.Source, progress func(scanned int)) ([]int, error) {
	defer func() {
		if err := src.Close(); err != nil {
			s.logger.Warn("failed to close source", "error", err)
		}
	}()

	logger := s.logger.With("source", src.ID(), "target", s.path)
	onFail := func(attempt int, err error) {
		logger.Debug("frame read failed", "attempt", attempt, "error", err)
	}

	var matches []int
	scanned := 0
	for {
		frame, err := capture.ReadWithRetry(ctx, src, s.retry, onFail)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return matches, fmt.Errorf("scan %s: %w", src.ID(), err)
		}

		res, err := s.template.Match(ctx, imaging.ToGray(frame.Image))
		switch {
		case errors.Is(err, imaging.ErrTemplateTooLarge):
			logger.Debug("frame smaller than target", "frame", frame.Index)
		case err != nil:
			return matches, fmt.Errorf("scan %s: %w", src.ID(), err)
		case res.Peak > s.threshold:
			logger.Debug("target found", "frame", frame.Index, "peak", res.Peak, "at", res.At)
			matches = append(matches, frame.Index)
		}

		scanned++
		if progress != nil {
			progress(scanned)
		}
	}

	logger.Info("scan finished", "frames", scanned, "matches", len(matches))
	return matches, nil
}

// FormatResult renders the outcome of a scan for display.
func FormatResult(frames []int) string {
	if len(frames) == 0 {
		return "Target image not detected in the video."
	}
	parts := make([]string, len(frames))
	for i, f := range frames {
		parts[i] = strconv.Itoa(f)
	}
	return "Target image detected in frames: " + strings.Join(parts, ", ")
}
