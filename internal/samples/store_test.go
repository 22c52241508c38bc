package samples

import (
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func crop() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 8))
}

func TestDirStore_SaveLayout(t *testing.T) {
	root := t.TempDir()
	s := NewDirStore(root)

	p0, err := s.Save(3, crop())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	p1, err := s.Save(3, crop())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if want := filepath.Join(root, "person_3", "face_0.jpg"); p0 != want {
		t.Errorf("first path = %s, want %s", p0, want)
	}
	if want := filepath.Join(root, "person_3", "face_1.jpg"); p1 != want {
		t.Errorf("second path = %s, want %s", p1, want)
	}

	n, err := s.Count(3)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestDirStore_ContinuesAfterExistingFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "person_1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"face_0.jpg", "face_4.jpg", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := NewDirStore(root)
	p, err := s.Save(1, crop())
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filepath.Base(p) != "face_5.jpg" {
		t.Errorf("expected face_5.jpg, got %s", filepath.Base(p))
	}
}

func TestDirStore_ConcurrentWritesNeverCollide(t *testing.T) {
	s := NewDirStore(t.TempDir())

	const writers = 16
	paths := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.Save(7, crop())
			if err != nil {
				t.Errorf("Save failed: %v", err)
			}
			paths[i] = p
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			t.Errorf("duplicate path %s", p)
		}
		seen[p] = true
	}

	n, err := s.Count(7)
	if err != nil {
		t.Fatal(err)
	}
	if n != writers {
		t.Errorf("Count = %d, want %d", n, writers)
	}
}

func TestDirStore_CountMissingIdentity(t *testing.T) {
	s := NewDirStore(t.TempDir())
	n, err := s.Count(42)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
}

func TestParseIndex(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"face_0.jpg", 0, true},
		{"face_12.jpg", 12, true},
		{"face_x.jpg", 0, false},
		{"face_3.png", 0, false},
		{"other.jpg", 0, false},
		{"face_-1.jpg", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseIndex(tt.name)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseIndex(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}
