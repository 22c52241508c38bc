// Package constants provides shared constants used across the codebase.
package constants

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100

	// FrameSubscriberBuffer is the per-subscriber buffer of the frame publisher.
	// A subscriber that falls behind misses frames instead of stalling capture.
	FrameSubscriberBuffer = 2
)

// Web constants
const (
	// DefaultWebPort is the default control surface port
	DefaultWebPort = 8080

	// DefaultWebHost is the default control surface bind address
	DefaultWebHost = "0.0.0.0"

	// MaxRequestBodySize bounds JSON request bodies on the control surface
	MaxRequestBodySize = 1 << 20
)
