// Package samples persists a bounded set of face crops per identity.
package samples

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/kozaktomas/sauron/internal/imaging"
)

// Store persists evidence crops for an identity and returns the written path.
type Store interface {
	Save(identityID int, crop image.Image) (string, error)
}

// DirStore writes crops as <root>/person_<id>/face_<n>.jpg.
// n comes from a per-identity counter that starts after the highest
// existing file, so concurrent or restarted writers never collide.
type DirStore struct {
	root string

	mu   sync.Mutex
	next map[int]int
}

// NewDirStore creates a store rooted at dir. The directory is created lazily.
func NewDirStore(dir string) *DirStore {
	return &DirStore{
		root: dir,
		next: make(map[int]int),
	}
}

// Root returns the base directory.
func (s *DirStore) Root() string {
	return s.root
}

// Dir returns the directory holding crops of one identity.
func (s *DirStore) Dir(identityID int) string {
	return filepath.Join(s.root, fmt.Sprintf("person_%d", identityID))
}

// Save writes crop as the next file for identityID.
func (s *DirStore) Save(identityID int, crop image.Image) (string, error) {
	dir := s.Dir(identityID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}

	n, err := s.reserve(identityID, dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("face_%d.jpg", n))
	if err := imaging.WriteJPEGFile(path, crop); err != nil {
		return "", err
	}
	return path, nil
}

// reserve hands out the next file number for an identity.
func (s *DirStore) reserve(identityID int, dir string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.next[identityID]
	if !ok {
		highest, err := highestIndex(dir)
		if err != nil {
			return 0, err
		}
		n = highest + 1
	}
	s.next[identityID] = n + 1
	return n, nil
}

// Count returns the number of crops on disk for identityID.
func (s *DirStore) Count(identityID int) (int, error) {
	entries, err := os.ReadDir(s.Dir(identityID))
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read identity directory: %w", err)
	}

	count := 0
	for _, e := range entries {
		if _, ok := parseIndex(e.Name()); ok {
			count++
		}
	}
	return count, nil
}

// highestIndex returns the largest face_<n>.jpg index in dir, or -1.
func highestIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read identity directory: %w", err)
	}

	highest := -1
	for _, e := range entries {
		if n, ok := parseIndex(e.Name()); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func parseIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, "face_") || !strings.HasSuffix(name, ".jpg") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "face_"), ".jpg"))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// NopStore discards crops.
type NopStore struct{}

// Save implements Store.
func (NopStore) Save(int, image.Image) (string, error) { return "", nil }

var (
	_ Store = (*DirStore)(nil)
	_ Store = NopStore{}
)
