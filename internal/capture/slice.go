package capture

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/kozaktomas/sauron/internal/imaging"
)

// SliceSource serves in-memory images in order, then io.EOF.
// Transient failures can be injected before any frame with FailBefore.
type SliceSource struct {
	id     string
	images []*image.RGBA

	mu       sync.Mutex
	pos      int
	failures map[int]int
	reads    int
	closed   bool
	now      func() time.Time
}

// NewSliceSource creates a source over imgs. Each image is converted to RGBA.
func NewSliceSource(id string, imgs ...image.Image) *SliceSource {
	rgba := make([]*image.RGBA, len(imgs))
	for i, img := range imgs {
		rgba[i] = imaging.ToRGBA(img)
	}
	return &SliceSource{
		id:       id,
		images:   rgba,
		failures: make(map[int]int),
		now:      time.Now,
	}
}

// FailBefore makes the next times reads of frame index fail with ErrNoFrame.
func (s *SliceSource) FailBefore(index, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[index] = times
}

// Read implements Source.
func (s *SliceSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	s.reads++

	if s.pos >= len(s.images) {
		return nil, io.EOF
	}
	if s.failures[s.pos] > 0 {
		s.failures[s.pos]--
		return nil, ErrNoFrame
	}

	frame := &Frame{
		Index:     s.pos,
		Timestamp: s.now(),
		Image:     imaging.ToRGBA(s.images[s.pos]),
		Source:    s.id,
	}
	s.pos++
	return frame, nil
}

// Consumed returns how many frames have been delivered.
func (s *SliceSource) Consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Reads returns the number of Read calls made while open.
func (s *SliceSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FrameCount implements FrameCounter.
func (s *SliceSource) FrameCount() int {
	return len(s.images)
}

// Close implements Source.
func (s *SliceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ID implements Source.
func (s *SliceSource) ID() string {
	return s.id
}

var _ Source = (*SliceSource)(nil)
