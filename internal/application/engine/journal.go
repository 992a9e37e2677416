package engine

import (
	"sync"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/events"
	"github.com/penwyp/go-fade-canvas/internal/metrics"
)

// journal pairs every grid mutation with its diff event. Paints and aging ticks both commit
// through it, so the event log replays in the order the grid changed. Persistence happens after
// commit, outside the lock.
type journal struct {
	mu    sync.Mutex
	store *canvas.Store
	log   *events.Log
}

func newJournal(store *canvas.Store, log *events.Log) *journal {
	return &journal{store: store, log: log}
}

// commit runs mutate and appends what it changed as one event. ok is false when nothing changed.
func (j *journal) commit(now time.Time, mutate func(*canvas.Store) []canvas.Pixel) (changed []canvas.Pixel, ev events.Event, ok bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	changed = mutate(j.store)
	if len(changed) == 0 {
		return nil, events.Event{}, false
	}
	ev = j.log.Append(changed, now)
	metrics.EventLogSize.Set(float64(j.log.Len()))
	return changed, ev, true
}
