// Package detectlog records confirmed target detections. Records are only
// ever appended; readers exist for external viewers.
package detectlog

import (
	"context"
	"errors"
	"time"

	"github.com/kozaktomas/sauron/internal/embedding"
)

// TimestampLayout is the timestamp format of the CSV log.
const TimestampLayout = "2006-01-02 15:04:05"

// Event is one confirmed detection.
type Event struct {
	SourceID     string              `json:"source_id"`
	Label        string              `json:"label"`
	Timestamp    time.Time           `json:"timestamp"`
	EvidencePath string              `json:"evidence_path"`
	Distance     float64             `json:"distance,omitempty"`
	Embedding    embedding.Embedding `json:"-"`
}

// Sink appends events.
type Sink interface {
	Append(ctx context.Context, ev Event) error
}

// Multi appends every event to all sinks and joins their errors.
type Multi []Sink

// Append implements Sink.
func (m Multi) Append(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops events.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(context.Context, Event) error { return nil }
