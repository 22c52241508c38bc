package detectlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/sauron/internal/database/postgres"
	"github.com/kozaktomas/sauron/internal/embedding"
)

func TestCSVLog_AppendFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	log := NewCSVLog(path)
	ts := time.Date(2024, 5, 17, 9, 3, 7, 0, time.Local)

	err := log.Append(context.Background(), Event{
		SourceID:     "0",
		Label:        "Alice, the target",
		Timestamp:    ts,
		EvidencePath: "evidence/alice.jpg",
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := "0,\"Alice, the target\",2024-05-17 09:03:07,evidence/alice.jpg\n"
	if string(data) != want {
		t.Errorf("got %q, want %q", string(data), want)
	}
}

func TestCSVLog_AppendsNeverTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	if err := os.WriteFile(path, []byte("old,row,2020-01-01 00:00:00,x.jpg\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := NewCSVLog(path)
	if err := log.Append(context.Background(), Event{SourceID: "cam1", Label: "bob", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	events, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Label != "row" || events[1].Label != "bob" {
		t.Errorf("unexpected order: %+v", events)
	}
}

func TestCSVLog_ConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "detections.csv")
	log := NewCSVLog(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := log.Append(context.Background(), Event{SourceID: "cam", Label: "x", Timestamp: time.Now()}); err != nil {
				t.Errorf("Append failed: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 20 {
		t.Errorf("expected 20 rows, got %d", len(lines))
	}
	for _, l := range lines {
		if strings.Count(l, ",") != 3 {
			t.Errorf("interleaved row: %q", l)
		}
	}
}

func TestCSVLog_UnwritablePath(t *testing.T) {
	log := NewCSVLog(filepath.Join(t.TempDir(), "missing", "detections.csv"))
	if err := log.Append(context.Background(), Event{Timestamp: time.Now()}); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestReadAll(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		events, err := ReadAll(filepath.Join(t.TempDir(), "nope.csv"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("expected no events, got %d", len(events))
		}
	})

	t.Run("skips bad rows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "detections.csv")
		content := strings.Join([]string{
			"cam0,alice,2024-01-02 03:04:05,a.jpg",
			"short,row",
			"cam0,alice,not-a-time,b.jpg",
			"cam1,bob,2024-01-02 03:04:06,c.jpg",
		}, "\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}

		events, err := ReadAll(path)
		if err != nil {
			t.Fatalf("ReadAll failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[1].SourceID != "cam1" || events[1].EvidencePath != "c.jpg" {
			t.Errorf("unexpected event: %+v", events[1])
		}
		if events[0].Timestamp.Second() != 5 {
			t.Errorf("expected second 5, got %d", events[0].Timestamp.Second())
		}
	})
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) Append(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMulti(t *testing.T) {
	errA := errors.New("a failed")
	a := &recordingSink{err: errA}
	b := &recordingSink{}

	err := Multi{a, b}.Append(context.Background(), Event{Label: "x"})
	if !errors.Is(err, errA) {
		t.Errorf("expected joined error to contain errA, got %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Error("expected every sink to receive the event")
	}

	if err := (Multi{b}).Append(context.Background(), Event{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Discard.Append(context.Background(), Event{}); err != nil {
		t.Errorf("Discard returned %v", err)
	}
}

type fakeStore struct {
	got []postgres.Detection
	err error
}

func (f *fakeStore) InsertDetection(_ context.Context, d postgres.Detection) (int64, error) {
	f.got = append(f.got, d)
	return int64(len(f.got)), f.err
}

func TestPostgresSink(t *testing.T) {
	store := &fakeStore{}
	sink := NewPostgresSink(store)
	ts := time.Now()

	err := sink.Append(context.Background(), Event{
		SourceID:     "cam2",
		Label:        "carol",
		Timestamp:    ts,
		EvidencePath: "e.jpg",
		Distance:     0.25,
		Embedding:    embedding.Embedding{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if len(store.got) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.got))
	}
	d := store.got[0]
	if d.SourceID != "cam2" || d.Label != "carol" || !d.DetectedAt.Equal(ts) || d.Distance != 0.25 {
		t.Errorf("unexpected detection: %+v", d)
	}
	if len(d.Embedding) != 3 || d.Embedding[2] != 3 {
		t.Errorf("unexpected embedding: %v", d.Embedding)
	}

	if err := sink.Append(context.Background(), Event{Label: "no-face"}); err != nil {
		t.Fatal(err)
	}
	if store.got[1].Embedding != nil {
		t.Error("expected nil embedding for event without one")
	}

	store.err = errors.New("db down")
	if err := sink.Append(context.Background(), Event{}); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
