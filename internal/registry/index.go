package registry

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/sauron/internal/embedding"
)

const (
	// indexMaxNeighbors is the HNSW M parameter.
	indexMaxNeighbors = 16
	// indexEfSearch is the candidate list size used during search.
	indexEfSearch = 40
)

// NearestIndex wraps an HNSW graph over identity reference embeddings
// (Euclidean distance). Vectors whose length differs from the first indexed
// vector are not indexed; they cannot match anything anyway.
type NearestIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int]
	dims  int
}

// NewNearestIndex creates an empty index.
func NewNearestIndex() *NearestIndex {
	return &NearestIndex{graph: newGraph()}
}

func newGraph() *hnsw.Graph[int] {
	g := hnsw.NewGraph[int]()
	g.M = indexMaxNeighbors
	g.Ml = 1.0 / float64(indexMaxNeighbors)
	g.EfSearch = indexEfSearch
	g.Distance = hnsw.EuclideanDistance
	return g
}

// Add indexes the reference embedding of identity id.
func (n *NearestIndex) Add(id int, emb embedding.Embedding) {
	if len(emb) == 0 {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.dims == 0 {
		n.dims = len(emb)
	}
	if len(emb) != n.dims {
		return
	}
	n.graph.Add(hnsw.MakeNode(id, emb.Float32()))
}

// Nearest returns the id of the approximately nearest indexed identity.
// ok is false when the index is empty or the query has the wrong length.
func (n *NearestIndex) Nearest(query embedding.Embedding) (id int, ok bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.graph.Len() == 0 || len(query) != n.dims {
		return 0, false
	}

	neighbors := n.graph.Search(query.Float32(), 1)
	if len(neighbors) == 0 {
		return 0, false
	}
	return neighbors[0].Key, true
}

// Len returns the number of indexed identities.
func (n *NearestIndex) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.graph.Len()
}

// Reset drops every indexed vector.
func (n *NearestIndex) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.graph = newGraph()
	n.dims = 0
}
