package verify

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/sauron/internal/detectlog"
	"github.com/kozaktomas/sauron/internal/embedding"
)

// taggedFrame returns a frame whose top-left pixel carries tag; tagProvider
// looks the tag up to decide which faces the frame shows.
func taggedFrame(tag uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 160, 120))
	for i := range img.Pix {
		img.Pix[i] = 60
	}
	img.SetRGBA(0, 0, color.RGBA{R: tag, A: 255})
	return img
}

type tagProvider struct {
	mu    sync.Mutex
	faces map[uint8][]embedding.Face
	err   error
	calls int
}

func (p *tagProvider) DetectAndEmbed(_ context.Context, frame image.Image) ([]embedding.Face, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	r, _, _, _ := frame.At(frame.Bounds().Min.X, frame.Bounds().Min.Y).RGBA()
	return append([]embedding.Face(nil), p.faces[uint8(r>>8)]...), nil
}

func (p *tagProvider) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return nil, errors.New("not used")
}

func (p *tagProvider) Embed(context.Context, image.Image) (embedding.Embedding, bool, error) {
	return nil, false, errors.New("not used")
}

func (p *tagProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type memorySink struct {
	mu     sync.Mutex
	events []detectlog.Event
	err    error
}

func (s *memorySink) Append(_ context.Context, ev detectlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *memorySink) Events() []detectlog.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]detectlog.Event(nil), s.events...)
}

// writePNG stores img losslessly and returns its path.
func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}
