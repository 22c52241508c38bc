//go:build !gocv

package capture

import (
	"errors"
	"testing"
)

func TestOpenGocv_NotCompiledIn(t *testing.T) {
	src, err := OpenGocv("cam0", "0", 640, 480)
	if src != nil {
		t.Error("expected no source")
	}
	var openErr *OpenError
	if !errors.As(err, &openErr) || openErr.Source != "cam0" {
		t.Fatalf("expected OpenError for cam0, got %v", err)
	}
	if !errors.Is(err, ErrDriverUnavailable) {
		t.Errorf("expected ErrDriverUnavailable, got %v", err)
	}
}
