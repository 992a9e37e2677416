// Package events holds the bounded log of diff events used for incremental client sync.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
)

// Event is an immutable record of pixels whose rendered state changed.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Pixels    []canvas.Pixel `json:"pixels"`

	// Resync marks the single event returned for a cursor the log no longer knows. The client
	// should re-fetch the full grid and continue from ID.
	Resync bool `json:"resync,omitempty"`
}

// Log is a fixed-capacity ring of events, oldest evicted first.
type Log struct {
	mu    sync.RWMutex
	ring  []Event
	head  int // index of the oldest event
	size  int
	newID func() string
}

// NewLog creates a log holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity < 1 {
		capacity = 1
	}
	return &Log{ring: make([]Event, capacity), newID: newEventID}
}

// newEventID returns a time-ordered UUIDv7, falling back to v4 if the clock read fails.
func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Append records pixels as a new event and returns it. Empty diffs are still recorded.
func (l *Log) Append(pixels []canvas.Pixel, at time.Time) Event {
	ev := Event{
		ID:        l.newID(),
		Timestamp: at,
		Pixels:    append([]canvas.Pixel(nil), pixels...),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.size == len(l.ring) {
		l.ring[l.head] = ev
		l.head = (l.head + 1) % len(l.ring)
	} else {
		l.ring[(l.head+l.size)%len(l.ring)] = ev
		l.size++
	}
	return ev
}

func (l *Log) at(i int) Event {
	return l.ring[(l.head+i)%len(l.ring)]
}

// Since returns the events appended after cursor, oldest first. An empty result means nothing
// changed. An unknown, evicted or empty cursor yields one Resync marker carrying the newest id
// ("" when the log is empty).
func (l *Log) Since(cursor string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cursor != "" {
		for i := l.size - 1; i >= 0; i-- {
			if l.at(i).ID != cursor {
				continue
			}
			out := make([]Event, 0, l.size-1-i)
			for j := i + 1; j < l.size; j++ {
				out = append(out, l.at(j))
			}
			return out
		}
	}
	return []Event{{ID: l.newestLocked(), Resync: true, Pixels: []canvas.Pixel{}}}
}

// NewestID returns the id of the latest event, "" when the log is empty.
func (l *Log) NewestID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.newestLocked()
}

func (l *Log) newestLocked() string {
	if l.size == 0 {
		return ""
	}
	return l.at(l.size - 1).ID
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// Cap returns the ring capacity.
func (l *Log) Cap() int { return len(l.ring) }
