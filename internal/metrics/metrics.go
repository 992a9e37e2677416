// Package metrics registers the engine's Prometheus collectors on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaintBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fade_canvas_paint_batches_total",
		Help: "Paint batches that applied at least one pixel",
	})

	PixelsPaintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fade_canvas_pixels_painted_total",
		Help: "Pixel writes applied, erases included",
	})

	PixelsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fade_canvas_pixels_dropped_total",
		Help: "Pixel writes dropped as out of range",
	})

	AgingTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fade_canvas_aging_ticks_total",
		Help: "Aging ticks run by the scheduler",
	})

	PixelsFadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fade_canvas_pixels_faded_total",
		Help: "Cells changed by aging ticks",
	}, []string{"outcome"}) // dimmed, died

	AgingTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fade_canvas_aging_tick_duration_seconds",
		Help:    "Duration of one aging tick, persistence included",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	PersistFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fade_canvas_persist_failures_total",
		Help: "Failed grid persistence attempts",
	}, []string{"source"}) // paint, tick, close

	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fade_canvas_snapshots_total",
		Help: "Snapshot capture attempts",
	}, []string{"trigger", "result"})

	EventLogSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fade_canvas_event_log_size",
		Help: "Events currently retained in the diff log",
	})

	BurstActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fade_canvas_burst_active",
		Help: "1 while a paint burst is awaiting its autosnapshot",
	})

	GallerySavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fade_canvas_gallery_saves_total",
		Help: "Images saved to the gallery",
	})
)

// Outcome and result label values.
const (
	OutcomeDimmed = "dimmed"
	OutcomeDied   = "died"

	SourcePaint = "paint"
	SourceTick  = "tick"
	SourceClose = "close"

	TriggerManual = "manual"
	TriggerAuto   = "auto"
	ResultOK      = "ok"
	ResultError   = "error"
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
