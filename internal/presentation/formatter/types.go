package formatter

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/canvas"
	"github.com/penwyp/go-fade-canvas/internal/core/snapshot"
	"github.com/penwyp/go-fade-canvas/internal/util"
)

// Formatter writes an inspect report.
type Formatter interface {
	Format(w io.Writer, r *Report) error
}

// Report describes a data directory at one instant.
type Report struct {
	DataDir     string          `json:"data_dir"`
	GeneratedAt time.Time       `json:"generated_at"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Version     uint64          `json:"version"`
	Live        int             `json:"live"`
	Fading      int             `json:"fading"`
	Dead        int             `json:"dead"`
	OldestPaint *time.Time      `json:"oldest_paint,omitempty"`
	NewestPaint *time.Time      `json:"newest_paint,omitempty"`
	NextDeath   *time.Time      `json:"next_death,omitempty"`
	TopColors   []ColorCount    `json:"top_colors"`
	Cells       []CellRow       `json:"-"`
	Snapshots   []snapshot.Meta `json:"snapshots"`
	Gallery     int             `json:"gallery_entries"`
}

// ColorCount is one bucket of the live-colour histogram.
type ColorCount struct {
	Hex   string `json:"hex"`
	R     uint8  `json:"r"`
	G     uint8  `json:"g"`
	B     uint8  `json:"b"`
	Count int    `json:"count"`
}

// CellRow is one live cell.
type CellRow struct {
	X, Y      int
	Cell      canvas.Cell
	PaintedAt time.Time
	FadeStart time.Time
	FadeEnd   time.Time
}

// MaxTopColors caps the histogram.
const MaxTopColors = 8

// BuildReport summarizes a: counts, paint-time range, next death and colour histogram.
func BuildReport(dataDir string, a *canvas.GridArrays, now time.Time) *Report {
	r := &Report{
		DataDir:     dataDir,
		GeneratedAt: now,
		Width:       a.Width,
		Height:      a.Height,
		Version:     a.Version,
		TopColors:   []ColorCount{},
		Snapshots:   []snapshot.Meta{},
	}

	counts := make(map[[3]uint8]int)
	var oldest, newest, nextDeath time.Time
	for i, ts := range a.PaintedAt {
		if ts == 0 || a.InitialAlpha[i] == 0 {
			r.Dead++
			continue
		}
		painted := time.Unix(ts, 0)
		start := painted.Add(time.Duration(float64(a.Fade[i*2]) * float64(time.Second)))
		end := painted.Add(time.Duration(float64(a.Fade[i*2+1]) * float64(time.Second)))
		cell := canvas.Cell{
			R: a.Colors[i*4], G: a.Colors[i*4+1], B: a.Colors[i*4+2], A: a.Colors[i*4+3],
			PaintedAt: ts, FadeStart: a.Fade[i*2], FadeEnd: a.Fade[i*2+1], InitialAlpha: a.InitialAlpha[i],
		}

		r.Live++
		if !now.Before(start) {
			r.Fading++
		}
		if oldest.IsZero() || painted.Before(oldest) {
			oldest = painted
		}
		if painted.After(newest) {
			newest = painted
		}
		if nextDeath.IsZero() || end.Before(nextDeath) {
			nextDeath = end
		}
		counts[[3]uint8{cell.R, cell.G, cell.B}]++
		r.Cells = append(r.Cells, CellRow{
			X: i % a.Width, Y: i / a.Width,
			Cell: cell, PaintedAt: painted, FadeStart: start, FadeEnd: end,
		})
	}
	if r.Live > 0 {
		r.OldestPaint, r.NewestPaint, r.NextDeath = &oldest, &newest, &nextDeath
	}

	for rgb, n := range counts {
		r.TopColors = append(r.TopColors, ColorCount{
			Hex: util.FormatHexColor(rgb[0], rgb[1], rgb[2]),
			R:   rgb[0], G: rgb[1], B: rgb[2],
			Count: n,
		})
	}
	sort.Slice(r.TopColors, func(i, j int) bool {
		if r.TopColors[i].Count != r.TopColors[j].Count {
			return r.TopColors[i].Count > r.TopColors[j].Count
		}
		return r.TopColors[i].Hex < r.TopColors[j].Hex
	})
	if len(r.TopColors) > MaxTopColors {
		r.TopColors = r.TopColors[:MaxTopColors]
	}
	return r
}

// New returns the formatter for an --output value.
func New(name string, color bool) (Formatter, error) {
	switch name {
	case "table", "":
		return NewTableFormatter(color), nil
	case "json":
		return NewJSONFormatter(), nil
	case "csv":
		return NewCSVFormatter(), nil
	case "summary":
		return NewSummaryFormatter(), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (table, json, csv, summary)", name)
	}
}
