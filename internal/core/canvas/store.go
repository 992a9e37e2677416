// Package canvas owns the fading pixel grid: per-cell color, paint timestamp, fade window and
// initial alpha, guarded by one lock.
package canvas

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/lifespan"
)

// Options configures repaint behaviour.
type Options struct {
	Policy RepaintPolicy

	// RefreshOnRepaint makes every a>0 write restart the fade clock, ahead of Policy.
	RefreshOnRepaint bool
}

// DefaultOptions matches the reference deployment: the override is on.
func DefaultOptions() Options {
	return Options{Policy: RepaintDiffColorRefresh, RefreshOnRepaint: true}
}

// Store is the authoritative grid. All four parallel arrays are guarded by mu.
type Store struct {
	width, height int
	sampler       *lifespan.Sampler
	opts          Options

	mu           sync.RWMutex
	rgba         []uint8
	paintedAt    []int64
	fade         []float32
	initialAlpha []uint8
	version      uint64
}

// NewStore creates an all-dead grid.
func NewStore(width, height int, sampler *lifespan.Sampler, opts Options) *Store {
	n := width * height
	return &Store{
		width:        width,
		height:       height,
		sampler:      sampler,
		opts:         opts,
		rgba:         make([]uint8, n*ColorBytes),
		paintedAt:    make([]int64, n),
		fade:         make([]float32, n*2),
		initialAlpha: make([]uint8, n),
	}
}

func (s *Store) Width() int  { return s.width }
func (s *Store) Height() int { return s.height }

// Options returns the repaint configuration.
func (s *Store) Options() Options { return s.opts }

// Version returns the mutation counter. It increases on every change to any array.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func validChannel(v int) bool { return v >= 0 && v <= 255 }

func (s *Store) valid(w PixelWrite) bool {
	return w.X >= 0 && w.X < s.width && w.Y >= 0 && w.Y < s.height &&
		validChannel(w.R) && validChannel(w.G) && validChannel(w.B) && validChannel(w.A)
}

// ApplyBatch writes a stroke. Out-of-range entries are dropped. The returned pixels are the
// applied writes in input order, duplicates included, so the last write for a cell wins downstream.
func (s *Store) ApplyBatch(writes []PixelWrite, now time.Time) []Pixel {
	stroke := s.sampler.NewStroke()
	ts := now.Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	applied := make([]Pixel, 0, len(writes))
	for _, w := range writes {
		if !s.valid(w) {
			continue
		}
		i := w.Y*s.width + w.X
		c := i * ColorBytes
		r, g, b, a := uint8(w.R), uint8(w.G), uint8(w.B), uint8(w.A)

		if a == 0 {
			s.rgba[c], s.rgba[c+1], s.rgba[c+2], s.rgba[c+3] = 0, 0, 0, 0
			s.kill(i)
			applied = append(applied, Pixel{X: w.X, Y: w.Y})
			continue
		}

		wasDead := s.paintedAt[i] == 0
		sameRGB := s.rgba[c] == r && s.rgba[c+1] == g && s.rgba[c+2] == b
		refresh := wasDead || s.opts.RefreshOnRepaint || s.opts.Policy.refreshes(wasDead, sameRGB)

		s.rgba[c], s.rgba[c+1], s.rgba[c+2], s.rgba[c+3] = r, g, b, a
		if refresh {
			win := stroke.Next()
			s.paintedAt[i] = ts
			s.fade[i*2] = float32(win.Start)
			s.fade[i*2+1] = float32(win.End)
			s.initialAlpha[i] = a
		}
		applied = append(applied, Pixel{X: w.X, Y: w.Y, R: r, G: g, B: b, A: a})
	}
	if len(applied) > 0 {
		s.version++
	}
	return applied
}

// kill resets the aging metadata of cell i. Caller holds mu.
func (s *Store) kill(i int) {
	s.paintedAt[i] = 0
	s.fade[i*2] = 0
	s.fade[i*2+1] = 0
	s.initialAlpha[i] = 0
}

// AgeTick decays every live cell to its alpha at now and returns the cells whose alpha dropped.
// Cells past their fade end die in this tick; RGB is kept, alpha becomes 0.
func (s *Store) AgeTick(now time.Time) []Pixel {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []Pixel
	for i, painted := range s.paintedAt {
		if painted == 0 {
			continue
		}
		start, end := float64(s.fade[i*2]), float64(s.fade[i*2+1])
		if end <= start {
			continue
		}
		age := now.Sub(time.Unix(painted, 0)).Seconds()
		c := i * ColorBytes

		if age > end {
			s.rgba[c+3] = 0
			s.kill(i)
			changed = append(changed, s.pixelAt(i))
			continue
		}
		if age <= start {
			continue
		}

		frac := (age - start) / (end - start)
		frac = math.Max(0, math.Min(1, frac))
		eased := frac * frac
		alpha := uint8(math.Round(float64(s.initialAlpha[i]) * (1 - eased)))
		// Decrease only: a repaint that kept the fade clock may sit below the curve, and a tick
		// never raises it back.
		if alpha < s.rgba[c+3] {
			s.rgba[c+3] = alpha
			changed = append(changed, s.pixelAt(i))
		}
	}
	if len(changed) > 0 {
		s.version++
	}
	return changed
}

func (s *Store) pixelAt(i int) Pixel {
	c := i * ColorBytes
	return Pixel{
		X: i % s.width,
		Y: i / s.width,
		R: s.rgba[c],
		G: s.rgba[c+1],
		B: s.rgba[c+2],
		A: s.rgba[c+3],
	}
}

// FullBytes returns a copy of the RGBA buffer, row-major, 4 bytes per cell.
func (s *Store) FullBytes() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]byte, len(s.rgba))
	copy(out, s.rgba)
	return out
}

// Cell returns one cell's full state. Out-of-range coordinates return a zero Cell.
func (s *Store) Cell(x, y int) Cell {
	if x < 0 || x >= s.width || y < 0 || y >= s.height {
		return Cell{}
	}
	i := y*s.width + x
	c := i * ColorBytes

	s.mu.RLock()
	defer s.mu.RUnlock()
	return Cell{
		R:            s.rgba[c],
		G:            s.rgba[c+1],
		B:            s.rgba[c+2],
		A:            s.rgba[c+3],
		PaintedAt:    s.paintedAt[i],
		FadeStart:    s.fade[i*2],
		FadeEnd:      s.fade[i*2+1],
		InitialAlpha: s.initialAlpha[i],
	}
}

// Arrays returns a consistent copy of all four arrays, stamped with the current version.
func (s *Store) Arrays() *GridArrays {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &GridArrays{
		Width:        s.width,
		Height:       s.height,
		Colors:       append([]byte(nil), s.rgba...),
		PaintedAt:    append([]int64(nil), s.paintedAt...),
		Fade:         append([]float32(nil), s.fade...),
		InitialAlpha: append([]byte(nil), s.initialAlpha...),
		Version:      s.version,
	}
}

// Load replaces the grid with a, normalizing cells whose metadata contradicts the dead sentinel.
func (s *Store) Load(a *GridArrays) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.Width != s.width || a.Height != s.height {
		return fmt.Errorf("%w: grid is %dx%d, store is %dx%d", ErrCorruptState, a.Width, a.Height, s.width, s.height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.rgba, a.Colors)
	copy(s.paintedAt, a.PaintedAt)
	copy(s.fade, a.Fade)
	copy(s.initialAlpha, a.InitialAlpha)
	for i, painted := range s.paintedAt {
		if painted == 0 || s.initialAlpha[i] == 0 {
			s.kill(i)
		}
	}
	s.version++
	return nil
}

// Reset clears the grid to all-dead.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.rgba)
	clear(s.paintedAt)
	clear(s.fade)
	clear(s.initialAlpha)
	s.version++
}
