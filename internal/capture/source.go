// Package capture provides frame sources for cameras, video files and image
// sequences, and the retry policy applied to failed reads.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrNoFrame is a transient read failure; the same source may be read again.
	ErrNoFrame = errors.New("no frame")
	// ErrSourceLost is returned when a retry budget is exhausted.
	ErrSourceLost = errors.New("source lost")
	// ErrClosed is returned by Read after Close.
	ErrClosed = errors.New("source closed")
)

// Frame is one captured image. Index is the zero-based position of the frame
// within its source.
type Frame struct {
	Index     int
	Timestamp time.Time
	Image     *image.RGBA
	Source    string
}

// Source produces frames until it is exhausted (io.EOF) or closed.
// Read returns ErrNoFrame for failures that may succeed on a later call.
// A Source is read by one goroutine; Close may be called from any goroutine.
type Source interface {
	Read(ctx context.Context) (*Frame, error)
	Close() error
	ID() string
}

// FrameCounter is implemented by sources that know their length up front.
// FrameCount returns -1 when the length is unknown.
type FrameCounter interface {
	FrameCount() int
}

// OpenError reports a source that could not be opened.
type OpenError struct {
	Source string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open source %s: %v", e.Source, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// FrameCount returns the number of frames src will produce, or -1.
func FrameCount(src Source) int {
	if fc, ok := src.(FrameCounter); ok {
		return fc.FrameCount()
	}
	return -1
}
