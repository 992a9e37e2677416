package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/activity"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/events"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
	"github.com/penwyp/go-fade-canvas/internal/metrics"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

// TickReport summarizes one scheduler tick
type TickReport struct {
	At        time.Time
	Dimmed    int
	Died      int
	Persisted bool
	EventID   string
	Snapshot  *snapshot.Meta
	Errors    []error
}

// Changed returns the number of cells the tick touched.
func (r TickReport) Changed() int { return r.Dimmed + r.Died }

// AutosnapRecord is the last snapshot the scheduler took on its own.
type AutosnapRecord struct {
	ID        string
	Timestamp time.Time
}

// Scheduler ages the grid and fires autosnapshots after a burst goes idle
type Scheduler struct {
	store   *canvas.Store
	journal *journal
	tracker *activity.Tracker
	persist GridPersister
	snaps   SnapshotCapturer
	clock   util.Clock
	logger  util.LoggerInterface

	period    time.Duration
	idleAfter time.Duration
	label     string

	tickMu sync.Mutex // Prevent overlapping ticks

	mu           sync.RWMutex
	lastAutosnap *AutosnapRecord
}

// NewScheduler creates a scheduler over the given components. cfg must be validated.
func NewScheduler(store *canvas.Store, tracker *activity.Tracker, log *events.Log,
	persist GridPersister, snaps SnapshotCapturer, clock util.Clock, cfg Config) *Scheduler {
	if clock == nil {
		clock = util.SystemClock()
	}
	return &Scheduler{
		store:     store,
		journal:   newJournal(store, log),
		tracker:   tracker,
		persist:   persist,
		snaps:     snaps,
		clock:     clock,
		logger:    util.Component("scheduler"),
		period:    cfg.FadeTick,
		idleAfter: cfg.AutosnapIdleAfter,
		label:     cfg.AutosnapLabel,
	}
}

// Tick runs one aging pass and the autosnapshot check at now. Errors are logged and reported,
// never fatal.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickReport {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() {
		metrics.AgingTicksTotal.Inc()
		metrics.AgingTickDuration.Observe(time.Since(start).Seconds())
	}()

	report := TickReport{At: now}

	// Phase 1: age every live cell
	changed, ev, ok := s.journal.commit(now, func(store *canvas.Store) []canvas.Pixel {
		return store.AgeTick(now)
	})
	if ok {
		report.EventID = ev.ID
		for _, p := range changed {
			if p.A == 0 {
				report.Died++
			} else {
				report.Dimmed++
			}
		}
		metrics.PixelsFadedTotal.WithLabelValues(metrics.OutcomeDimmed).Add(float64(report.Dimmed))
		metrics.PixelsFadedTotal.WithLabelValues(metrics.OutcomeDied).Add(float64(report.Died))

		saved, err := s.persist.Save(s.store.Arrays())
		if err != nil {
			metrics.PersistFailuresTotal.WithLabelValues(metrics.SourceTick).Inc()
			s.logger.Error("Failed to persist grid after aging", util.Err(err))
			report.Errors = append(report.Errors, fmt.Errorf("persist: %w", err))
		}
		report.Persisted = saved

		s.logger.Debug("Aging tick",
			util.F("dimmed", report.Dimmed), util.F("died", report.Died), util.F("event", ev.ID))
	}

	// Phase 2: autosnapshot once a burst has gone quiet
	st := s.tracker.Status(now)
	metrics.BurstActive.Set(metrics.BoolGauge(st.BurstActive))
	if st.BurstActive && st.HasPainted && st.Idle >= s.idleAfter {
		meta, err := s.snaps.Capture(ctx, s.label)
		if err != nil {
			metrics.SnapshotsTotal.WithLabelValues(metrics.TriggerAuto, metrics.ResultError).Inc()
			s.logger.Error("Autosnapshot failed, will retry next tick", util.Err(err))
			report.Errors = append(report.Errors, fmt.Errorf("autosnapshot: %w", err))
			return report
		}
		metrics.SnapshotsTotal.WithLabelValues(metrics.TriggerAuto, metrics.ResultOK).Inc()
		s.tracker.ClearBurst()
		metrics.BurstActive.Set(0)

		s.mu.Lock()
		s.lastAutosnap = &AutosnapRecord{ID: meta.ID, Timestamp: meta.Timestamp}
		s.mu.Unlock()

		s.logger.Info("Autosnapshot captured",
			util.F("id", meta.ID), util.F("burst_started", st.BurstStartedAt.Format(time.RFC3339)))
		report.Snapshot = &meta
	}
	return report
}

// LastAutosnap returns the most recent autosnapshot, if any.
func (s *Scheduler) LastAutosnap() (AutosnapRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastAutosnap == nil {
		return AutosnapRecord{}, false
	}
	return *s.lastAutosnap, true
}

// Run ticks every period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Aging scheduler started", util.F("period", s.period.String()))

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Aging scheduler stopped")
			return nil

		case <-ticker.C:
			s.safeTick(ctx)
		}
	}
}

// safeTick keeps the loop alive if a tick panics.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Aging tick panicked", util.F("panic", fmt.Sprint(r)))
		}
	}()
	s.Tick(ctx, s.clock.Now())
}
