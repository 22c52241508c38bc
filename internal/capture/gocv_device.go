package capture

import (
	"errors"
	"strconv"
	"strings"
)

// ErrDriverUnavailable is returned when a capture driver is not compiled in.
var ErrDriverUnavailable = errors.New("capture driver not available in this build")

// gocvDevice maps a device string to an OpenCV camera index: "2" and
// "/dev/video2" both name index 2. Anything else is opened as a file or URL.
func gocvDevice(device string) (int, bool) {
	s := strings.TrimPrefix(device, "/dev/video")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// isStreamURL reports whether device is a network stream, which reads like a
// camera: failed reads are transient instead of ending the source.
func isStreamURL(device string) bool {
	return strings.Contains(device, "://")
}
