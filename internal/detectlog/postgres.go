package detectlog

import (
	"context"
	"fmt"

	"github.com/kozaktomas/sauron/internal/database/postgres"
)

// DetectionStore is the persistence used by PostgresSink.
type DetectionStore interface {
	InsertDetection(ctx context.Context, d postgres.Detection) (int64, error)
}

// PostgresSink stores events in the detection_events table, including the
// matched face embedding when there is one.
type PostgresSink struct {
	store DetectionStore
}

// NewPostgresSink creates a sink over store.
func NewPostgresSink(store DetectionStore) *PostgresSink {
	return &PostgresSink{store: store}
}

// Append implements Sink.
func (s *PostgresSink) Append(ctx context.Context, ev Event) error {
	d := postgres.Detection{
		SourceID:     ev.SourceID,
		Label:        ev.Label,
		DetectedAt:   ev.Timestamp,
		EvidencePath: ev.EvidencePath,
		Distance:     ev.Distance,
	}
	if len(ev.Embedding) > 0 {
		d.Embedding = ev.Embedding.Float32()
	}
	if _, err := s.store.InsertDetection(ctx, d); err != nil {
		return fmt.Errorf("failed to store detection: %w", err)
	}
	return nil
}

var _ Sink = (*PostgresSink)(nil)
