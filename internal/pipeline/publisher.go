package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/sauron/internal/capture"
	"github.com/kozaktomas/sauron/internal/constants"
)

// Publisher receives every frame a processor has finished with.
// Implementations must not block and must not modify the frame.
type Publisher interface {
	Publish(frame *capture.Frame)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(frame *capture.Frame)

// Publish implements Publisher.
func (f PublisherFunc) Publish(frame *capture.Frame) { f(frame) }

type nopPublisher struct{}

func (nopPublisher) Publish(*capture.Frame) {}

// LatestFrames keeps the most recent frame of each camera and forwards frames
// to subscribers. A subscriber that falls behind loses its oldest queued frame.
type LatestFrames struct {
	mu     sync.RWMutex
	latest map[string]*capture.Frame
	subs   map[string]map[chan *capture.Frame]struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewLatestFrames creates an empty publisher.
func NewLatestFrames() *LatestFrames {
	return &LatestFrames{
		latest: make(map[string]*capture.Frame),
		subs:   make(map[string]map[chan *capture.Frame]struct{}),
	}
}

// Publish implements Publisher.
func (l *LatestFrames) Publish(frame *capture.Frame) {
	l.mu.Lock()
	l.latest[frame.Source] = frame
	l.mu.Unlock()
	l.published.Add(1)

	l.mu.RLock()
	defer l.mu.RUnlock()
	for ch := range l.subs[frame.Source] {
		select {
		case ch <- frame:
			continue
		default:
		}
		// Full: drop the oldest queued frame and retry once.
		select {
		case <-ch:
			l.dropped.Add(1)
		default:
		}
		select {
		case ch <- frame:
		default:
			l.dropped.Add(1)
		}
	}
}

// Latest returns the most recent frame of a camera.
func (l *LatestFrames) Latest(cameraID string) (*capture.Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.latest[cameraID]
	return f, ok
}

// Subscribe returns a channel of frames for one camera and a function that
// ends the subscription and closes the channel.
func (l *LatestFrames) Subscribe(cameraID string) (<-chan *capture.Frame, func()) {
	ch := make(chan *capture.Frame, constants.FrameSubscriberBuffer)

	l.mu.Lock()
	if l.subs[cameraID] == nil {
		l.subs[cameraID] = make(map[chan *capture.Frame]struct{})
	}
	l.subs[cameraID][ch] = struct{}{}
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs[cameraID], ch)
			if len(l.subs[cameraID]) == 0 {
				delete(l.subs, cameraID)
			}
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of subscribers of a camera.
func (l *LatestFrames) Subscribers(cameraID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs[cameraID])
}

// Published returns the total number of frames published.
func (l *LatestFrames) Published() uint64 {
	return l.published.Load()
}

// Dropped returns the number of frames discarded for slow subscribers.
func (l *LatestFrames) Dropped() uint64 {
	return l.dropped.Load()
}

var _ Publisher = (*LatestFrames)(nil)
