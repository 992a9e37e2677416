// Package activity keeps a trailing window of paint volume and derives burst and idle status.
package activity

import (
	"math"
	"sync"
	"time"
)

type entry struct {
	at    time.Time
	count int
}

// Status is a point-in-time view of recent activity.
type Status struct {
	PixelsInWindow int
	Window         time.Duration

	// Idle is the time since the last registered paint, or the maximum duration when nothing has
	// been painted yet.
	Idle       time.Duration
	HasPainted bool

	BurstActive    bool
	BurstStartedAt time.Time
}

// Tracker is safe for concurrent use. It holds its own lock, unrelated to the grid's.
type Tracker struct {
	window    time.Duration
	threshold int

	mu        sync.Mutex
	entries   []entry // ring storage
	head      int
	size      int
	sum       int
	lastPaint time.Time
	burst     bool
	burstAt   time.Time
}

// NewTracker creates a tracker for the given window and burst threshold in pixels.
func NewTracker(window time.Duration, threshold int) *Tracker {
	return &Tracker{
		window:    window,
		threshold: threshold,
		entries:   make([]entry, 16),
	}
}

// Register records count pixels painted at now. Non-positive counts are ignored.
func (t *Tracker) Register(now time.Time, count int) {
	if count <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.push(entry{at: now, count: count})
	if now.After(t.lastPaint) {
		t.lastPaint = now
	}
	t.evict(now)
	if !t.burst && t.sum > t.threshold {
		t.burst = true
		t.burstAt = now
	}
}

// Status reports the window sum and burst state at now.
func (t *Tracker) Status(now time.Time) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evict(now)
	st := Status{
		PixelsInWindow: t.sum,
		Window:         t.window,
		Idle:           time.Duration(math.MaxInt64),
		BurstActive:    t.burst,
		BurstStartedAt: t.burstAt,
	}
	if !t.lastPaint.IsZero() {
		st.HasPainted = true
		st.Idle = max(now.Sub(t.lastPaint), 0)
	}
	return st
}

// ClearBurst resets the burst flag. Only the scheduler calls this, after an autosnapshot.
func (t *Tracker) ClearBurst() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.burst = false
	t.burstAt = time.Time{}
}

func (t *Tracker) push(e entry) {
	if t.size == len(t.entries) {
		grown := make([]entry, len(t.entries)*2)
		for i := 0; i < t.size; i++ {
			grown[i] = t.entries[(t.head+i)%len(t.entries)]
		}
		t.entries = grown
		t.head = 0
	}
	t.entries[(t.head+t.size)%len(t.entries)] = e
	t.size++
	t.sum += e.count
}

// evict drops entries older than the window, oldest first.
func (t *Tracker) evict(now time.Time) {
	cutoff := now.Add(-t.window)
	for t.size > 0 {
		oldest := t.entries[t.head]
		if !oldest.at.Before(cutoff) {
			return
		}
		t.sum -= oldest.count
		t.entries[t.head] = entry{}
		t.head = (t.head + 1) % len(t.entries)
		t.size--
	}
}
