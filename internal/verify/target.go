// Package verify implements the target verifiers: a live one-shot face
// verifier and an exhaustive template scan over recorded video.
package verify

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/sauron/internal/embedding"
	"github.com/kozaktomas/sauron/internal/imaging"
)

// Target is an enrolled person. It is read-only once loaded.
type Target struct {
	Reference embedding.Embedding
	Label     string
	ImagePath string
	Box       image.Rectangle // face box within the target image
}

// LoadTarget reads the target image and embeds its first face in detection order.
// An empty label defaults to the image file name without extension.
func LoadTarget(ctx context.Context, path, label string, provider embedding.Provider) (*Target, error) {
	if provider == nil {
		return nil, &ConstructionError{Kind: KindInvalidConfig, Path: path, Err: fmt.Errorf("embedding provider is required")}
	}

	img, err := imaging.DecodeFile(path)
	if err != nil {
		return nil, &ConstructionError{Kind: KindUnreadableImage, Path: path, Err: err}
	}

	faces, err := embedding.DetectAndEmbed(ctx, provider, img)
	if err != nil {
		return nil, &ConstructionError{Kind: KindProvider, Path: path, Err: err}
	}
	if len(faces) == 0 {
		return nil, &ConstructionError{Kind: KindNoFace, Path: path, Err: ErrNoFace}
	}

	if label = strings.TrimSpace(label); label == "" {
		label = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &Target{
		Reference: faces[0].Embedding.Clone(),
		Label:     label,
		ImagePath: path,
		Box:       faces[0].Box,
	}, nil
}

// KeepCopy copies the target image into dir and points ImagePath at the copy.
// Call it before the target is handed to a verifier.
func (t *Target) KeepCopy(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create target dir: %w", err)
	}

	src, err := os.Open(t.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to open target image: %w", err)
	}
	defer src.Close()

	dst := filepath.Join(dir, filepath.Base(t.ImagePath))
	if filepath.Clean(dst) == filepath.Clean(t.ImagePath) {
		return nil
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create target copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy target image: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close target copy: %w", err)
	}

	t.ImagePath = dst
	return nil
}
