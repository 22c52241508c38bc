//go:build !gocv

package capture

// OpenGocv reports ErrDriverUnavailable; build with -tags gocv for OpenCV capture.
func OpenGocv(id, device string, width, height int) (Source, error) {
	return nil, &OpenError{Source: id, Err: ErrDriverUnavailable}
}
