// Package engine wires the canvas lifecycle components together and exposes the operations the
// transport layer drives.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/activity"
	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/events"
	"github.com/penwyp/go-fade-canvas/internal/core/lifespan"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
	"github.com/penwyp/go-fade-canvas/internal/data/blobstore"
	"github.com/penwyp/go-fade-canvas/internal/data/gridfile"
	"github.com/penwyp/go-fade-canvas/internal/metrics"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

var (
	// ErrEmptyBatch is the validation failure for a paint request without pixels.
	ErrEmptyBatch = errors.New("paint batch is empty")
	// ErrStorage wraps I/O failures surfaced to on-demand callers.
	ErrStorage = errors.New("storage failure")
)

// DefaultSnapshotLabel is used when a manual snapshot request has no label.
const DefaultSnapshotLabel = "manual"

// Options carries collaborators that are not part of Config.
type Options struct {
	Clock     util.Clock
	Companion snapshot.CompanionSource
	Source    lifespan.Source // nil seeds from Config.Seed or the clock
}

// BatchResult reports what a paint batch did.
type BatchResult struct {
	ChangedCount int    `json:"changed_count"`
	DroppedCount int    `json:"dropped_count"`
	EventID      string `json:"event_id,omitempty"`
}

// Grid is the full canvas as raw RGBA.
type Grid struct {
	Width  int
	Height int
	Pixels []byte
}

// Activity is the burst/idle view served to clients.
type Activity struct {
	PixelsInWindow        int        `json:"pixels_in_window"`
	WindowSeconds         float64    `json:"window_seconds"`
	IdleSeconds           *float64   `json:"idle_seconds"` // nil before the first paint
	BurstActive           bool       `json:"burst_active"`
	BurstStartedAt        *time.Time `json:"burst_started_at,omitempty"`
	LastAutosnapID        string     `json:"last_autosnap_id,omitempty"`
	LastAutosnapTimestamp *time.Time `json:"last_autosnap_ts,omitempty"`
}

// Engine owns the canvas state for one data directory.
type Engine struct {
	cfg    Config
	clock  util.Clock
	logger util.LoggerInterface

	lock      *gridfile.Lock
	grid      *gridfile.Dir
	store     *canvas.Store
	journal   *journal
	tracker   *activity.Tracker
	log       *events.Log
	snaps     *snapshot.Coordinator
	scheduler *Scheduler

	closeOnce sync.Once
	closeErr  error
}

// New validates cfg, locks the data directory and restores the persisted grid. A missing or
// corrupt grid is replaced by an all-dead one.
func New(cfg Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		tp, err := util.NewTimeProvider(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		clock = tp
	}
	logger := util.Component("engine")

	lock, err := gridfile.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			lock.Release()
		}
	}()

	src := opts.Source
	if src == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = uint64(clock.Now().UnixNano())
		}
		src = lifespan.NewSource(seed)
	}
	sampler, err := lifespan.NewSampler(cfg.Lifespan, src)
	if err != nil {
		return nil, err
	}
	store := canvas.NewStore(cfg.Width, cfg.Height, sampler, cfg.StoreOptions())

	grid, err := gridfile.Open(cfg.GridDir())
	if err != nil {
		return nil, err
	}
	restoreGrid(logger, grid, store)

	blobs, err := blobstore.NewFileStore(cfg.SnapshotDir())
	if err != nil {
		return nil, err
	}
	snaps := snapshot.NewCoordinator(blobs, store, opts.Companion, clock)
	if err := snaps.LoadIndex(context.Background()); err != nil {
		// Keep running; the next capture rewrites the index from what is in memory.
		logger.Error("Snapshot index unreadable, starting with an empty index", util.Err(err))
	}

	tracker := activity.NewTracker(cfg.BurstWindow, cfg.BurstThreshold)
	log := events.NewLog(cfg.EventLogCapacity)

	e := &Engine{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		lock:    lock,
		grid:    grid,
		store:   store,
		tracker: tracker,
		log:     log,
		snaps:   snaps,
	}
	e.scheduler = NewScheduler(store, tracker, log, grid, snaps, clock, cfg)
	e.journal = e.scheduler.journal

	logger.Info("Canvas engine ready",
		util.F("data_dir", cfg.DataDir),
		util.F("size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height)),
		util.F("repaint_policy", cfg.RepaintPolicy),
		util.F("refresh_on_repaint", cfg.RefreshOnRepaint),
		util.F("snapshots", len(snaps.List())))
	ok = true
	return e, nil
}

func restoreGrid(logger util.LoggerInterface, grid *gridfile.Dir, store *canvas.Store) {
	arrays, err := grid.Load(store.Width(), store.Height())
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("No persisted grid, starting empty", util.F("dir", grid.Path()))
		return
	case err != nil:
		logger.Warn("Persisted grid unusable, starting empty", util.F("dir", grid.Path()), util.Err(err))
		return
	}
	if err := store.Load(arrays); err != nil {
		logger.Warn("Persisted grid rejected, starting empty", util.Err(err))
		store.Reset()
		return
	}
	logger.Info("Restored persisted grid", util.F("dir", grid.Path()))
}

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.cfg }

// Scheduler returns the aging scheduler.
func (e *Engine) Scheduler() *Scheduler { return e.scheduler }

// Snapshots returns the snapshot coordinator.
func (e *Engine) Snapshots() *snapshot.Coordinator { return e.snaps }

// persist writes the grid outside the grid lock. Failures are logged and counted; the next
// mutation tries again.
func (e *Engine) persist(source string) error {
	if _, err := e.grid.Save(e.store.Arrays()); err != nil {
		metrics.PersistFailuresTotal.WithLabelValues(source).Inc()
		e.logger.Error("Failed to persist grid", util.F("source", source), util.Err(err))
		return err
	}
	return nil
}

// ApplyPaintBatch applies one stroke. Invalid entries are dropped; an empty batch is rejected.
func (e *Engine) ApplyPaintBatch(ctx context.Context, writes []canvas.PixelWrite) (BatchResult, error) {
	if len(writes) == 0 {
		return BatchResult{}, ErrEmptyBatch
	}
	now := e.clock.Now()

	applied, ev, ok := e.journal.commit(now, func(store *canvas.Store) []canvas.Pixel {
		return store.ApplyBatch(writes, now)
	})
	result := BatchResult{ChangedCount: len(applied), DroppedCount: len(writes) - len(applied)}
	metrics.PixelsDroppedTotal.Add(float64(result.DroppedCount))
	if !ok {
		return result, nil
	}
	result.EventID = ev.ID
	metrics.PaintBatchesTotal.Inc()
	metrics.PixelsPaintedTotal.Add(float64(len(applied)))

	e.tracker.Register(now, len(applied))
	_ = e.persist(metrics.SourcePaint)

	e.logger.Debug("Paint batch applied",
		util.F("changed", result.ChangedCount), util.F("dropped", result.DroppedCount), util.F("event", ev.ID))
	return result, nil
}

// GetFullGrid returns a copy of the whole canvas.
func (e *Engine) GetFullGrid() Grid {
	return Grid{Width: e.store.Width(), Height: e.store.Height(), Pixels: e.store.FullBytes()}
}

// GetEventsSince returns diff events after cursor, or a resync marker.
func (e *Engine) GetEventsSince(cursor string) []events.Event {
	return e.log.Since(cursor)
}

// GetActivity reports the trailing window, burst state and last autosnapshot.
func (e *Engine) GetActivity() Activity {
	st := e.tracker.Status(e.clock.Now())
	a := Activity{
		PixelsInWindow: st.PixelsInWindow,
		WindowSeconds:  st.Window.Seconds(),
		BurstActive:    st.BurstActive,
	}
	if st.HasPainted {
		idle := st.Idle.Seconds()
		a.IdleSeconds = &idle
	}
	if st.BurstActive {
		started := st.BurstStartedAt
		a.BurstStartedAt = &started
	}
	if rec, ok := e.scheduler.LastAutosnap(); ok {
		a.LastAutosnapID = rec.ID
		ts := rec.Timestamp
		a.LastAutosnapTimestamp = &ts
	}
	return a
}

// RequestSnapshot captures the canvas on demand. I/O failures wrap ErrStorage.
func (e *Engine) RequestSnapshot(ctx context.Context, label string) (snapshot.Meta, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultSnapshotLabel
	}
	meta, err := e.snaps.Capture(ctx, label)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues(metrics.TriggerManual, metrics.ResultError).Inc()
		return snapshot.Meta{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	metrics.SnapshotsTotal.WithLabelValues(metrics.TriggerManual, metrics.ResultOK).Inc()
	e.logger.Info("Snapshot captured", util.F("id", meta.ID), util.F("label", meta.Label))
	return meta, nil
}

// AttachSnapshotImage stores a preview for an existing snapshot.
func (e *Engine) AttachSnapshotImage(ctx context.Context, id string, png []byte) (snapshot.Meta, error) {
	meta, err := e.snaps.AttachImage(ctx, id, png)
	if errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrEmptyImage) {
		return snapshot.Meta{}, err
	}
	if err != nil {
		return snapshot.Meta{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return meta, nil
}

// ListSnapshots returns the snapshot index, oldest first.
func (e *Engine) ListSnapshots() []snapshot.Meta {
	return e.snaps.List()
}

// SnapshotPreview returns a snapshot's attached image.
func (e *Engine) SnapshotPreview(ctx context.Context, id string) ([]byte, error) {
	return e.snaps.Preview(ctx, id)
}

// Tick runs one scheduler pass at the engine clock's current time.
func (e *Engine) Tick(ctx context.Context) TickReport {
	return e.scheduler.Tick(ctx, e.clock.Now())
}

// Run drives the aging scheduler until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.scheduler.Run(ctx)
}

// Close persists the grid one last time and releases the data directory.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		persistErr := e.persist(metrics.SourceClose)
		lockErr := e.lock.Release()
		e.closeErr = errors.Join(persistErr, lockErr)
		e.logger.Info("Canvas engine closed")
	})
	return e.closeErr
}
