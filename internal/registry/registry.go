// Package registry assigns face embeddings to identities without prior
// enrollment. The first embedding of an unseen face becomes the identity's
// fixed reference; later embeddings within the similarity threshold resolve
// to it. A bounded number of face crops per identity are kept as evidence.
package registry

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/sauron/internal/constants"
	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/samples"
)

// ErrEmptyEmbedding is returned for a zero-length embedding.
var ErrEmptyEmbedding = errors.New("empty embedding")

// Policy selects which identity wins when several are within threshold.
type Policy int

const (
	// FirstMatch scans identities in creation order and takes the first one
	// within threshold.
	FirstMatch Policy = iota
	// NearestMatch takes the nearest identity proposed by an HNSW index,
	// accepted only when its exact distance is within threshold.
	NearestMatch
)

func (p Policy) String() string {
	switch p {
	case FirstMatch:
		return "first"
	case NearestMatch:
		return "nearest"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy parses "first" or "nearest".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return FirstMatch, nil
	case "nearest":
		return NearestMatch, nil
	default:
		return FirstMatch, fmt.Errorf("unknown match policy %q (expected first or nearest)", s)
	}
}

// Identity is one inferred distinct person.
type Identity struct {
	ID          int
	Reference   embedding.Embedding
	SampleCount int
	CreatedAt   time.Time
}

// Match is the outcome of MatchOrRegister.
type Match struct {
	ID          int
	IsNew       bool
	Distance    float64 // distance to the matched reference; 0 for new identities
	SampleSaved bool
	SamplePath  string
}

// Registry is safe for concurrent use by several stream processors.
type Registry struct {
	threshold  float64
	maxSamples int
	store      samples.Store
	policy     Policy
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	identities []*Identity // creation order
	byID       map[int]*Identity
	nextID     int
	index      *NearestIndex
}

// Option configures a Registry.
type Option func(*Registry)

// WithThreshold sets the maximum distance (exclusive) accepted as a match.
func WithThreshold(t float64) Option {
	return func(r *Registry) { r.threshold = t }
}

// WithMaxSamples caps the persisted crops per identity.
func WithMaxSamples(n int) Option {
	return func(r *Registry) { r.maxSamples = n }
}

// WithSampleStore sets where evidence crops are written.
func WithSampleStore(s samples.Store) Option {
	return func(r *Registry) { r.store = s }
}

// WithPolicy selects the match policy.
func WithPolicy(p Policy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		threshold:  constants.DefaultSimilarityThreshold,
		maxSamples: constants.DefaultMaxImagesPerPerson,
		store:      samples.NopStore{},
		policy:     FirstMatch,
		logger:     slog.Default(),
		now:        time.Now,
		byID:       make(map[int]*Identity),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == NearestMatch {
		r.index = NewNearestIndex()
	}
	return r
}

// Threshold returns the configured similarity threshold.
func (r *Registry) Threshold() float64 {
	return r.threshold
}

// MatchOrRegister resolves emb to exactly one identity, creating it when no
// known identity is within threshold. If the identity has fewer than the
// configured number of samples, crop is persisted as evidence. A failed
// write is logged and still counts toward the cap.
func (r *Registry) MatchOrRegister(emb embedding.Embedding, crop image.Image) (Match, error) {
	if len(emb) == 0 {
		return Match{}, ErrEmptyEmbedding
	}

	m, saveSample := r.classify(emb, crop != nil)
	if !saveSample {
		return m, nil
	}

	path, err := r.store.Save(m.ID, crop)
	if err != nil {
		r.logger.Warn("failed to save face sample", "identity", m.ID, "error", err)
		return m, nil
	}
	m.SampleSaved = true
	m.SamplePath = path
	return m, nil
}

// classify runs the locked part of MatchOrRegister: lookup, insert and
// sample-slot reservation.
func (r *Registry) classify(emb embedding.Embedding, hasCrop bool) (Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ident, dist := r.lookup(emb)
	m := Match{Distance: dist}
	if ident == nil {
		ident = &Identity{
			ID:        r.nextID,
			Reference: emb.Clone(),
			CreatedAt: r.now(),
		}
		r.nextID++
		r.identities = append(r.identities, ident)
		r.byID[ident.ID] = ident
		if r.index != nil {
			r.index.Add(ident.ID, ident.Reference)
		}
		m.IsNew = true
		m.Distance = 0
		r.logger.Debug("registered identity", "identity", ident.ID)
	}
	m.ID = ident.ID

	if !hasCrop || ident.SampleCount >= r.maxSamples {
		return m, false
	}
	ident.SampleCount++
	return m, true
}

// lookup must be called with r.mu held.
func (r *Registry) lookup(emb embedding.Embedding) (*Identity, float64) {
	if r.policy == NearestMatch && r.index != nil {
		id, ok := r.index.Nearest(emb)
		if !ok {
			return nil, math.Inf(1)
		}
		ident := r.byID[id]
		if ident == nil {
			return nil, math.Inf(1)
		}
		d := embedding.EuclideanDistance(emb, ident.Reference)
		if d < r.threshold {
			return ident, d
		}
		return nil, d
	}

	for _, ident := range r.identities {
		d := embedding.EuclideanDistance(emb, ident.Reference)
		if d < r.threshold {
			return ident, d
		}
	}
	return nil, math.Inf(1)
}

// Identities returns a snapshot in creation order.
func (r *Registry) Identities() []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Identity, len(r.identities))
	for i, ident := range r.identities {
		out[i] = *ident
		out[i].Reference = ident.Reference.Clone()
	}
	return out
}

// Get returns a copy of one identity.
func (r *Registry) Get(id int) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ident, ok := r.byID[id]
	if !ok {
		return Identity{}, false
	}
	out := *ident
	out.Reference = ident.Reference.Clone()
	return out, true
}

// Len returns the number of known identities.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.identities)
}

// Reset forgets all identities. IDs handed out before the reset are never
// reused.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.identities = nil
	r.byID = make(map[int]*Identity)
	if r.index != nil {
		r.index.Reset()
	}
	r.logger.Info("registry reset", "next_id", r.nextID)
}
