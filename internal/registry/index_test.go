package registry

import (
	"testing"

	"github.com/kozaktomas/sauron/internal/embedding"
)

func TestNearestIndex(t *testing.T) {
	idx := NewNearestIndex()

	if _, ok := idx.Nearest(embedding.Embedding{0, 0}); ok {
		t.Error("expected no result from empty index")
	}

	idx.Add(1, embedding.Embedding{0, 0})
	idx.Add(2, embedding.Embedding{10, 0})
	idx.Add(3, embedding.Embedding{0, 10})
	idx.Add(4, embedding.Embedding{1, 2, 3}) // wrong length, ignored

	if idx.Len() != 3 {
		t.Errorf("Len() = %d, want 3", idx.Len())
	}

	id, ok := idx.Nearest(embedding.Embedding{9, 1})
	if !ok || id != 2 {
		t.Errorf("Nearest() = %d, %v; want 2, true", id, ok)
	}

	if _, ok := idx.Nearest(embedding.Embedding{1, 2, 3}); ok {
		t.Error("expected no result for mismatched query length")
	}

	idx.Reset()
	if idx.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", idx.Len())
	}
	idx.Add(5, embedding.Embedding{1, 2, 3})
	if id, ok := idx.Nearest(embedding.Embedding{1, 2, 3}); !ok || id != 5 {
		t.Errorf("Nearest() after Reset = %d, %v; want 5, true", id, ok)
	}
}
