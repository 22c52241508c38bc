//go:build gocv

package capture

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/kozaktomas/sauron/internal/imaging"
)

// GocvSource reads frames through OpenCV. Build with -tags gocv.
type GocvSource struct {
	id     string
	camera bool

	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	index   int
	closed  bool
}

// OpenGocv opens device through OpenCV: a camera index or /dev/videoN, a
// stream URL or a video file.
func OpenGocv(id, device string, width, height int) (Source, error) {
	if n, ok := gocvDevice(device); ok {
		src, err := OpenGocvCamera(id, n, width, height)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := openGocvCapture(id, device, isStreamURL(device))
	if err != nil {
		return nil, err
	}
	return src, nil
}

// OpenGocvCamera opens a camera by device index.
func OpenGocvCamera(id string, device, width, height int) (*GocvSource, error) {
	vc, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, &OpenError{Source: id, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &OpenError{Source: id, Err: fmt.Errorf("camera %d not available", device)}
	}
	if width > 0 && height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	return &GocvSource{id: id, camera: true, capture: vc, mat: gocv.NewMat()}, nil
}

// OpenGocvFile opens a video file.
func OpenGocvFile(id, path string) (*GocvSource, error) {
	return openGocvCapture(id, path, false)
}

func openGocvCapture(id, input string, live bool) (*GocvSource, error) {
	vc, err := gocv.VideoCaptureFile(input)
	if err != nil {
		return nil, &OpenError{Source: id, Err: err}
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, &OpenError{Source: id, Err: fmt.Errorf("cannot decode %s", input)}
	}
	return &GocvSource{id: id, camera: live, capture: vc, mat: gocv.NewMat()}, nil
}

// Read implements Source. A failed read is transient for cameras and ends
// the source for files.
func (s *GocvSource) Read(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		if s.camera {
			return nil, ErrNoFrame
		}
		return nil, io.EOF
	}

	// OpenCV frames are BGR.
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(s.mat, &rgb, gocv.ColorBGRToRGBA)
	img, err := rgb.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoFrame, err)
	}

	var rgba *image.RGBA
	if r, ok := img.(*image.RGBA); ok {
		rgba = r
	} else {
		rgba = imaging.ToRGBA(img)
	}

	frame := &Frame{Index: s.index, Timestamp: time.Now(), Image: rgba, Source: s.id}
	s.index++
	return frame, nil
}

// FrameCount implements FrameCounter.
func (s *GocvSource) FrameCount() int {
	if s.camera {
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.capture.Get(gocv.VideoCaptureFrameCount))
}

// Close implements Source.
func (s *GocvSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.mat.Close()
	return s.capture.Close()
}

// ID implements Source.
func (s *GocvSource) ID() string {
	return s.id
}

var _ Source = (*GocvSource)(nil)
