package detectlog

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// CSVLog appends one header-less row per event:
// source_id,label,timestamp,evidence_path
// The file is opened for every append so external tools may rotate it.
type CSVLog struct {
	path string
	mu   sync.Mutex
}

// NewCSVLog creates a log writing to path.
func NewCSVLog(path string) *CSVLog {
	return &CSVLog{path: path}
}

// Path returns the log file path.
func (l *CSVLog) Path() string {
	return l.path
}

// Append implements Sink.
func (l *CSVLog) Append(ctx context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open detection log: %w", err)
	}

	w := csv.NewWriter(f)
	record := []string{
		ev.SourceID,
		ev.Label,
		ev.Timestamp.Local().Format(TimestampLayout),
		ev.EvidencePath,
	}
	if err := w.Write(record); err != nil {
		f.Close()
		return fmt.Errorf("failed to write detection log: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write detection log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close detection log: %w", err)
	}
	return nil
}

// ReadAll parses a detection log for display. A missing file is an empty log.
// Rows that do not parse are skipped.
func ReadAll(path string) ([]Event, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open detection log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var events []Event
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				continue
			}
			return nil, fmt.Errorf("failed to read detection log: %w", err)
		}
		if len(record) < 4 {
			continue
		}
		ts, err := time.ParseInLocation(TimestampLayout, record[2], time.Local)
		if err != nil {
			continue
		}
		events = append(events, Event{
			SourceID:     record[0],
			Label:        record[1],
			Timestamp:    ts,
			EvidencePath: record[3],
		})
	}
	return events, nil
}

var _ Sink = (*CSVLog)(nil)
