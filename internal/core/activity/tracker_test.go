package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestStatusBeforeAnyPaint(t *testing.T) {
	tr := NewTracker(30*time.Second, 200)
	st := tr.Status(t0)

	assert.False(t, st.HasPainted)
	assert.False(t, st.BurstActive)
	assert.Zero(t, st.PixelsInWindow)
	assert.Equal(t, 30*time.Second, st.Window)
	assert.Greater(t, st.Idle, 100*365*24*time.Hour)
}

func TestBurstThenIdle(t *testing.T) {
	tr := NewTracker(30*time.Second, 200)

	// 250 pixels in 25 registrations over 10 seconds
	for i := 0; i < 25; i++ {
		tr.Register(t0.Add(time.Duration(i)*400*time.Millisecond), 10)
	}
	last := t0.Add(24 * 400 * time.Millisecond)

	st := tr.Status(last)
	assert.Equal(t, 250, st.PixelsInWindow)
	assert.True(t, st.BurstActive)
	assert.Equal(t, t0.Add(20*400*time.Millisecond), st.BurstStartedAt, "burst starts at the registration that passes the threshold")

	st = tr.Status(last.Add(60 * time.Second))
	assert.Zero(t, st.PixelsInWindow, "window drained")
	assert.True(t, st.BurstActive, "burst does not clear by itself")
	assert.True(t, st.HasPainted)
	assert.Equal(t, 60*time.Second, st.Idle)

	tr.ClearBurst()
	st = tr.Status(last.Add(61 * time.Second))
	assert.False(t, st.BurstActive)
	assert.True(t, st.BurstStartedAt.IsZero())
}

func TestSlowPaintingNeverBursts(t *testing.T) {
	tr := NewTracker(30*time.Second, 200)
	for i := 0; i < 100; i++ {
		tr.Register(t0.Add(time.Duration(i)*10*time.Second), 50)
		require.False(t, tr.Status(t0.Add(time.Duration(i)*10*time.Second)).BurstActive, "step %d", i)
	}
}

func TestBurstNeedsMoreThanThreshold(t *testing.T) {
	tr := NewTracker(30*time.Second, 200)

	tr.Register(t0, 200)
	st := tr.Status(t0)
	assert.Equal(t, 200, st.PixelsInWindow)
	assert.False(t, st.BurstActive, "exactly the threshold is not a burst")

	tr.Register(t0.Add(time.Second), 1)
	st = tr.Status(t0.Add(time.Second))
	assert.True(t, st.BurstActive)
	assert.Equal(t, t0.Add(time.Second), st.BurstStartedAt)
}

func TestWindowEviction(t *testing.T) {
	tests := []struct {
		name   string
		offset time.Duration
		want   int
	}{
		{name: "inside window", offset: 29 * time.Second, want: 15},
		{name: "first entry on the edge", offset: 30 * time.Second, want: 15},
		{name: "first entry evicted", offset: 31 * time.Second, want: 10},
		{name: "all evicted", offset: 2 * time.Minute, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(30*time.Second, 1000)
			tr.Register(t0, 5)
			tr.Register(t0.Add(5*time.Second), 10)
			assert.Equal(t, tt.want, tr.Status(t0.Add(tt.offset)).PixelsInWindow)
		})
	}
}

func TestRegisterIgnoresEmptyCounts(t *testing.T) {
	tr := NewTracker(30*time.Second, 1)
	tr.Register(t0, 0)
	tr.Register(t0, -3)
	st := tr.Status(t0)
	assert.False(t, st.HasPainted)
	assert.False(t, st.BurstActive)
}

func TestRingGrowth(t *testing.T) {
	tr := NewTracker(time.Hour, 1_000_000)
	for i := 0; i < 1000; i++ {
		tr.Register(t0.Add(time.Duration(i)*time.Second), 1)
	}
	assert.Equal(t, 1000, tr.Status(t0.Add(1000*time.Second)).PixelsInWindow)
	// evict part of the ring and keep pushing so head wraps
	assert.Equal(t, 500, tr.Status(t0.Add(4100*time.Second)).PixelsInWindow)
	for i := 0; i < 100; i++ {
		tr.Register(t0.Add(4100*time.Second), 1)
	}
	assert.Equal(t, 600, tr.Status(t0.Add(4100*time.Second)).PixelsInWindow)
}

func TestTrackerConcurrent(t *testing.T) {
	tr := NewTracker(time.Hour, 500)
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.Register(t0, 1)
				_ = tr.Status(t0)
			}
		}()
	}
	wg.Wait()

	st := tr.Status(t0)
	assert.Equal(t, 1000, st.PixelsInWindow)
	assert.True(t, st.BurstActive)
}
