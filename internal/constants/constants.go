// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultSimilarityThreshold is the maximum Euclidean embedding distance accepted as
	// the same identity. Comparison is strict: a distance equal to the threshold is not a match.
	DefaultSimilarityThreshold = 0.6

	// DefaultMaxImagesPerPerson caps the number of face crops persisted per identity
	DefaultMaxImagesPerPerson = 5

	// DefaultTemplateThreshold is the minimum normalized cross-correlation peak for a
	// recorded-video frame to count as containing the target image
	DefaultTemplateThreshold = 0.8
)

// Storage constants
const (
	// DefaultFaceDir is the root directory of the per-identity evidence cache
	DefaultFaceDir = "detected_faces"

	// DefaultDetectionLog is the append-only CSV file of target detections
	DefaultDetectionLog = "detection_log.csv"

	// DefaultEvidenceDir holds frame snapshots written on target detection
	DefaultEvidenceDir = "evidence"

	// DefaultTargetDir receives a copy of each target image used for a search
	DefaultTargetDir = "target"

	// JPEGQuality is the quality used for all JPEG encodes (crops, snapshots, MJPEG)
	JPEGQuality = 85
)

// Capture constants
const (
	// DefaultFrameWidth and DefaultFrameHeight are used for cameras without explicit size
	DefaultFrameWidth  = 640
	DefaultFrameHeight = 480

	// DefaultFPS is the requested capture rate for cameras without explicit rate
	DefaultFPS = 15
)
