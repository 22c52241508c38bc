package verify

import (
	"errors"
	"fmt"
)

// ErrNoFace is wrapped by a ConstructionError when the target image has no detectable face.
var ErrNoFace = errors.New("no face detected in target image")

// ErrorKind classifies a construction failure.
type ErrorKind int

const (
	KindUnreadableImage ErrorKind = iota + 1
	KindNoFace
	KindProvider
	KindInvalidConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnreadableImage:
		return "unreadable image"
	case KindNoFace:
		return "no face"
	case KindProvider:
		return "embedding provider"
	case KindInvalidConfig:
		return "invalid configuration"
	default:
		return "unknown"
	}
}

// ConstructionError is returned when a verifier cannot be built. No verifier
// state exists when it is returned.
type ConstructionError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ConstructionError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("verifier: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("verifier: %s %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// IsConstructionError reports whether err is a ConstructionError of kind k.
func IsConstructionError(err error, k ErrorKind) bool {
	var ce *ConstructionError
	return errors.As(err, &ce) && ce.Kind == k
}
