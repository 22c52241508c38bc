package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/config"
)

func TestIsCameraDevice(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		device string
		want   bool
	}{
		{"/dev/video0", true},
		{"rtsp://10.0.0.5/stream", true},
		{"Integrated Camera", true},
		{file, false},
		{dir, false},
	}
	for _, tc := range tests {
		if got := isCameraDevice(tc.device); got != tc.want {
			t.Errorf("isCameraDevice(%q) = %v, want %v", tc.device, got, tc.want)
		}
	}
}

func TestResolveCameras(t *testing.T) {
	t.Run("flags win", func(t *testing.T) {
		cams, err := resolveCameras([]string{"/dev/video0", "/dev/video2"}, "v4l2", "", "missing.yaml")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cams) != 2 || cams[0].ID != "cam0" || cams[1].ID != "cam1" {
			t.Errorf("unexpected cameras: %+v", cams)
		}
		if cams[1].Format != "v4l2" || cams[1].FPS == 0 {
			t.Errorf("expected format and defaults, got %+v", cams[1])
		}
	})

	t.Run("driver flag", func(t *testing.T) {
		cams, err := resolveCameras([]string{"0"}, "", config.DriverGocv, "missing.yaml")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cams[0].Driver != config.DriverGocv {
			t.Errorf("expected gocv driver, got %q", cams[0].Driver)
		}
	})

	t.Run("cameras file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cameras.yaml")
		data := "cameras:\n  - id: door\n    device: /dev/video0\n"
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		cams, err := resolveCameras(nil, "", "", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cams) != 1 || cams[0].ID != "door" {
			t.Errorf("unexpected cameras: %+v", cams)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		if _, err := resolveCameras(nil, "", "", filepath.Join(t.TempDir(), "none.yaml")); err == nil {
			t.Error("expected error without cameras")
		}
	})
}

func TestRetryPolicy(t *testing.T) {
	if !retryPolicy(0).Forever() {
		t.Error("expected zero retries to mean forever")
	}
	if p := retryPolicy(3); p.Forever() || p.Budget() != 3 {
		t.Errorf("unexpected policy %v", p)
	}
}

func TestOpenSource_GocvDriver(t *testing.T) {
	cam := config.CameraConfig{ID: "cam0", Device: filepath.Join(t.TempDir(), "missing.mp4"), Driver: config.DriverGocv}
	_, err := openSource(context.Background(), cam, "ffmpeg", nil)

	var openErr *capture.OpenError
	if !errors.As(err, &openErr) || openErr.Source != "cam0" {
		t.Errorf("expected OpenError from the gocv driver, got %v", err)
	}
}
