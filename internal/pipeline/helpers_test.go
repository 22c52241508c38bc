package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/embedding"
)

// markedFrame returns a gray frame whose top-left pixel encodes tag, which
// fakeProvider uses to decide which faces the frame contains.
func markedFrame(tag uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for i := range img.Pix {
		img.Pix[i] = 40
	}
	img.SetRGBA(0, 0, color.RGBA{R: tag, A: 255})
	return img
}

type fakeProvider struct {
	mu    sync.Mutex
	faces map[uint8][]embedding.Face
	err   error
	calls int
}

func (f *fakeProvider) DetectAndEmbed(ctx context.Context, frame image.Image) ([]embedding.Face, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, _, _, _ := frame.At(0, 0).RGBA()
	faces := f.faces[uint8(r>>8)]
	out := make([]embedding.Face, len(faces))
	copy(out, faces)
	return out, nil
}

func (f *fakeProvider) Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) Embed(ctx context.Context, crop image.Image) (embedding.Embedding, bool, error) {
	return nil, false, errors.New("not used")
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames []*capture.Frame
	hook   func(*capture.Frame)
}

func (r *recordingPublisher) Publish(frame *capture.Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(frame)
	}
}

func (r *recordingPublisher) Frames() []*capture.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*capture.Frame(nil), r.frames...)
}

// endlessSource produces blank frames until closed, like a camera.
type endlessSource struct {
	id     string
	mu     sync.Mutex
	index  int
	closed bool
}

func (s *endlessSource) Read(ctx context.Context) (*capture.Frame, error) {
	time.Sleep(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, capture.ErrClosed
	}
	f := &capture.Frame{Index: s.index, Image: image.NewRGBA(image.Rect(0, 0, 8, 8)), Source: s.id}
	s.index++
	return f, nil
}

func (s *endlessSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *endlessSource) ID() string { return s.id }

func (s *endlessSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
