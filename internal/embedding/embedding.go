// Package embedding defines face embeddings, their distance metric, and the
// detector/embedder boundary consumed by the stream pipeline and verifiers.
package embedding

import (
	"context"
	"image"
	"math"

	"github.com/kozaktomas/sauron/internal/facematch"
	"github.com/kozaktomas/sauron/internal/imaging"
)

// Embedding is a fixed-length face descriptor produced by an external model.
// Values are never modified after they leave the provider.
type Embedding []float64

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Float32 converts the embedding for float32-based indexes and storage.
func (e Embedding) Float32() []float32 {
	out := make([]float32, len(e))
	for i, v := range e {
		out[i] = float32(v)
	}
	return out
}

// FromFloat32 converts a provider vector into an Embedding.
func FromFloat32(v []float32) Embedding {
	out := make(Embedding, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// EuclideanDistance computes the L2 distance between two embeddings.
// Returns +Inf for mismatched or empty vectors so they never match anything.
func EuclideanDistance(a, b Embedding) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Face is one detected face with its embedding.
type Face struct {
	Box       image.Rectangle
	Embedding Embedding
}

// Detector finds faces in a full frame. Boxes are returned in detector order.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]image.Rectangle, error)
}

// Embedder computes an embedding for a face crop.
// ok is false when the model finds no usable face in the crop; that is not an error.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) (emb Embedding, ok bool, err error)
}

// Provider combines detection and embedding.
type Provider interface {
	Detector
	Embedder
}

// FaceEmbedder is implemented by providers that can detect and embed a full
// frame in one call.
type FaceEmbedder interface {
	DetectAndEmbed(ctx context.Context, frame image.Image) ([]Face, error)
}

// DetectAndEmbed returns every detected face that yields an embedding, in detector
// order. Providers implementing FaceEmbedder are used directly; otherwise each
// detected box is cropped and embedded individually. Crops without an embedding
// are skipped.
func DetectAndEmbed(ctx context.Context, p Provider, frame image.Image) ([]Face, error) {
	if fe, ok := p.(FaceEmbedder); ok {
		return fe.DetectAndEmbed(ctx, frame)
	}

	boxes, err := p.Detect(ctx, frame)
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(boxes))
	for _, box := range boxes {
		box = facematch.ClampRect(box, frame.Bounds())
		if box.Empty() {
			continue
		}
		emb, ok, err := p.Embed(ctx, imaging.Crop(frame, box))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		faces = append(faces, Face{Box: box, Embedding: emb})
	}
	return faces, nil
}
