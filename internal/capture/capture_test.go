package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func blank(v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestSliceSource_ReadsInOrderThenEOF(t *testing.T) {
	src := NewSliceSource("cam0", blank(1), blank(2), blank(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		f, err := src.Read(ctx)
		if err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
		if f.Index != i || f.Source != "cam0" {
			t.Errorf("unexpected frame %d: index=%d source=%s", i, f.Index, f.Source)
		}
	}
	if _, err := src.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
	if src.FrameCount() != 3 {
		t.Errorf("FrameCount() = %d, want 3", src.FrameCount())
	}
}

func TestSliceSource_Close(t *testing.T) {
	src := NewSliceSource("cam0", blank(1))
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Read(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if !src.Closed() {
		t.Error("expected Closed() to be true")
	}
}

func TestReadWithRetry_Forever(t *testing.T) {
	src := NewSliceSource("cam0", blank(1))
	src.FailBefore(0, 50)

	var failures int
	f, err := ReadWithRetry(context.Background(), src, RetryForever(), func(attempt int, err error) {
		failures = attempt
		if !errors.Is(err, ErrNoFrame) {
			t.Errorf("expected ErrNoFrame, got %v", err)
		}
	})
	if err != nil {
		t.Fatalf("ReadWithRetry failed: %v", err)
	}
	if f.Index != 0 {
		t.Errorf("expected frame 0, got %d", f.Index)
	}
	if failures != 50 {
		t.Errorf("expected 50 failures reported, got %d", failures)
	}
}

func TestReadWithRetry_Budget(t *testing.T) {
	tests := []struct {
		name     string
		budget   int
		failures int
		wantLost bool
	}{
		{"recovers within budget", 3, 2, false},
		{"exhausts budget", 3, 3, true},
		{"budget of one", 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSliceSource("cam1", blank(1))
			src.FailBefore(0, tt.failures)

			_, err := ReadWithRetry(context.Background(), src, RetryBudget(tt.budget), nil)
			if got := errors.Is(err, ErrSourceLost); got != tt.wantLost {
				t.Errorf("ErrSourceLost = %v, want %v (err=%v)", got, tt.wantLost, err)
			}
		})
	}
}

func TestReadWithRetry_PassesThroughEOFAndCancel(t *testing.T) {
	src := NewSliceSource("cam0")
	if _, err := ReadWithRetry(context.Background(), src, RetryForever(), nil); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src = NewSliceSource("cam0", blank(1))
	if _, err := ReadWithRetry(ctx, src, RetryForever(), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if src.Consumed() != 0 {
		t.Error("cancelled read must not consume frames")
	}
}

func TestRetryPolicy(t *testing.T) {
	if !RetryForever().Forever() {
		t.Error("RetryForever should be forever")
	}
	if !RetryBudget(0).Forever() || !RetryBudget(-2).Forever() {
		t.Error("non-positive budgets should retry forever")
	}
	if p := RetryBudget(4); p.Forever() || p.Budget() != 4 || p.String() != "budget(4)" {
		t.Errorf("unexpected policy %v", p)
	}
	var zero RetryPolicy
	if !zero.Forever() {
		t.Error("zero policy should retry forever")
	}
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 6, 6))
	for i := 0; i < 36; i++ {
		img.Set(i%6, i/6, c)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestImageDirSource(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "002.png"), color.White)
	writePNG(t, filepath.Join(dir, "001.png"), color.Black)
	if err := os.WriteFile(filepath.Join(dir, "003.png"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(dir, "004.png"), color.White)
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := OpenImageDir("dir", dir)
	if err != nil {
		t.Fatalf("OpenImageDir failed: %v", err)
	}
	defer src.Close()

	if src.FrameCount() != 4 {
		t.Errorf("FrameCount() = %d, want 4", src.FrameCount())
	}

	ctx := context.Background()
	first, err := src.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.Image.RGBAAt(0, 0).R != 0 {
		t.Error("expected 001.png (black) first")
	}

	frames := []*Frame{first}
	for {
		f, err := ReadWithRetry(ctx, src, RetryForever(), nil)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 decodable frames, got %d", len(frames))
	}
	if frames[2].Index != 2 {
		t.Errorf("expected contiguous indices, got %d", frames[2].Index)
	}
}

func TestOpenImageDir_Errors(t *testing.T) {
	var openErr *OpenError

	_, err := OpenImageDir("missing", filepath.Join(t.TempDir(), "nope"))
	if !errors.As(err, &openErr) {
		t.Errorf("expected OpenError for missing dir, got %v", err)
	}

	_, err = OpenImageDir("empty", t.TempDir())
	if !errors.As(err, &openErr) {
		t.Errorf("expected OpenError for empty dir, got %v", err)
	}
}

func TestOpenFile_Missing(t *testing.T) {
	_, err := OpenFile(context.Background(), "video", filepath.Join(t.TempDir(), "missing.mp4"), FFmpegConfig{})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected wrapped not-exist error, got %v", err)
	}
}

func TestOpenCamera_MissingBinary(t *testing.T) {
	_, err := OpenCamera(context.Background(), "cam", "/dev/video0", FFmpegConfig{FFmpegPath: "/nonexistent/ffmpeg"})
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Errorf("expected OpenError, got %v", err)
	}
}

func TestRGB24ToRGBA(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6}
	img := rgb24ToRGBA(buf, 2, 1)
	if got := img.RGBAAt(1, 0); got != (color.RGBA{R: 4, G: 5, B: 6, A: 255}) {
		t.Errorf("unexpected pixel %v", got)
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 4}
	tb.Write([]byte("abc"))
	tb.Write([]byte("defg"))
	if tb.String() != "defg" {
		t.Errorf("tail = %q, want %q", tb.String(), "defg")
	}
}
