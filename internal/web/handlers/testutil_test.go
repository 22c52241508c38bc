package handlers

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/detectlog"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/pipeline"
	"github.com/kozaktomas/sauron/internal/registry"
)

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// taggedFrame returns a frame whose top-left pixel carries tag; tagProvider
// uses it to decide which faces are in the frame.
func taggedFrame(tag uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 90
	}
	img.SetRGBA(0, 0, color.RGBA{R: tag, A: 255})
	return img
}

type tagProvider struct {
	faces map[uint8][]embedding.Face
}

func (p *tagProvider) DetectAndEmbed(_ context.Context, frame image.Image) ([]embedding.Face, error) {
	r, _, _, _ := frame.At(0, 0).RGBA()
	return append([]embedding.Face(nil), p.faces[uint8(r>>8)]...), nil
}

func (p *tagProvider) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return nil, errors.New("not used")
}

func (p *tagProvider) Embed(context.Context, image.Image) (embedding.Embedding, bool, error) {
	return nil, false, errors.New("not used")
}

// loopSource serves the same frame until closed.
type loopSource struct {
	id     string
	mu     sync.Mutex
	index  int
	closed bool
}

func (s *loopSource) Read(ctx context.Context) (*capture.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, capture.ErrClosed
	}
	time.Sleep(time.Millisecond)
	f := &capture.Frame{Index: s.index, Timestamp: time.Now(), Image: taggedFrame(1), Source: s.id}
	s.index++
	return f, nil
}

func (s *loopSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *loopSource) ID() string { return s.id }

func newTestManager(t *testing.T, ids ...string) *pipeline.Manager {
	t.Helper()
	m := pipeline.NewManager(pipeline.ManagerConfig{
		Provider: &tagProvider{},
		Registry: registry.New(),
	})
	for _, id := range ids {
		id := id
		err := m.Add(pipeline.Camera{ID: id, Open: func(context.Context) (capture.Source, error) {
			return &loopSource{id: id}, nil
		}})
		if err != nil {
			t.Fatalf("failed to add camera: %v", err)
		}
	}
	t.Cleanup(m.StopAll)
	return m
}

type memorySink struct {
	mu     sync.Mutex
	events []detectlog.Event
}

func (s *memorySink) Append(_ context.Context, ev detectlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
