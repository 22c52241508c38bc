package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/sauron/internal/imaging"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// ImageDirSource serves the images of a directory in lexical filename order.
// A file that fails to decode yields ErrNoFrame and is skipped.
type ImageDirSource struct {
	id    string
	files []string

	mu     sync.Mutex
	pos    int
	index  int
	closed bool
}

// OpenImageDir lists dir and fails when it has no images.
func OpenImageDir(id, dir string) (*ImageDirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &OpenError{Source: id, Err: err}
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, &OpenError{Source: id, Err: errors.New("no images in " + dir)}
	}
	sort.Strings(files)

	return &ImageDirSource{id: id, files: files}, nil
}

// Read implements Source.
func (s *ImageDirSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.files) {
		return nil, io.EOF
	}

	path := s.files[s.pos]
	s.pos++
	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoFrame, filepath.Base(path), err)
	}

	frame := &Frame{
		Index:     s.index,
		Timestamp: time.Now(),
		Image:     imaging.ToRGBA(img),
		Source:    s.id,
	}
	s.index++
	return frame, nil
}

// FrameCount implements FrameCounter.
func (s *ImageDirSource) FrameCount() int {
	return len(s.files)
}

// Close implements Source.
func (s *ImageDirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ID implements Source.
func (s *ImageDirSource) ID() string {
	return s.id
}

var _ Source = (*ImageDirSource)(nil)
