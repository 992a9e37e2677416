// Package lifespan draws randomized pixel lifetimes and splits them into a linger period and a
// fade window.
package lifespan

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/penwyp/go-fade-canvas/internal/core/constants"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float64() float64
}

// lockedSource makes a *rand.Rand safe for concurrent batches.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// NewSource returns a concurrency-safe PCG source. Equal seeds give equal sequences.
func NewSource(seed uint64) Source {
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Params tunes the lifetime mixture.
type Params struct {
	PShort  float64
	PMedium float64
	PLong   float64

	// MinFade is the shortest allowed fade window, in seconds.
	MinFade float64

	// Jitter is the per-pixel spread J around a stroke's base lifetime: factor in [1-J, 1+J].
	Jitter float64

	// Coherent enables one shared base lifetime per stroke.
	Coherent bool
}

// DefaultParams returns the reference deployment's tuning.
func DefaultParams() Params {
	return Params{
		PShort:   constants.PShort,
		PMedium:  constants.PMedium,
		PLong:    constants.PLong,
		MinFade:  constants.MinFadeSeconds,
		Jitter:   constants.StrokeJitter,
		Coherent: true,
	}
}

var ErrInvalidParams = errors.New("invalid lifespan parameters")

// Validate checks that the probabilities form a distribution and the knobs are in range.
func (p Params) Validate() error {
	if p.PShort < 0 || p.PMedium < 0 || p.PLong < 0 {
		return fmt.Errorf("%w: probabilities must be non-negative", ErrInvalidParams)
	}
	if sum := p.PShort + p.PMedium + p.PLong; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: probabilities sum to %.6f, want 1", ErrInvalidParams, sum)
	}
	if p.MinFade <= 0 {
		return fmt.Errorf("%w: min fade must be positive, got %v", ErrInvalidParams, p.MinFade)
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return fmt.Errorf("%w: jitter must be in [0,1), got %v", ErrInvalidParams, p.Jitter)
	}
	return nil
}

// Branch names the mixture component a lifetime was drawn from.
type Branch int

const (
	BranchShort Branch = iota
	BranchMedium
	BranchLong
)

func (b Branch) String() string {
	switch b {
	case BranchShort:
		return "short"
	case BranchMedium:
		return "medium"
	case BranchLong:
		return "long"
	default:
		return "unknown"
	}
}

// Range returns the branch's lifetime bounds in seconds.
func (b Branch) Range() (lo, hi float64) {
	switch b {
	case BranchShort:
		return constants.ShortMin.Seconds(), constants.ShortMax.Seconds()
	case BranchMedium:
		return constants.MediumMin.Seconds(), constants.MediumMax.Seconds()
	default:
		return constants.LongMin.Seconds(), constants.LongMax.Seconds()
	}
}

// Window is a pixel's fade window in seconds after paint.
type Window struct {
	Start float64
	End   float64
}

// Duration returns the fade length.
func (w Window) Duration() time.Duration {
	return time.Duration((w.End - w.Start) * float64(time.Second))
}

// Sampler draws lifetimes. It holds no state besides its parameters and random source.
type Sampler struct {
	params Params
	src    Source
}

// NewSampler creates a sampler; a nil src gets a time-seeded source.
func NewSampler(params Params, src Source) (*Sampler, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		src = NewSource(uint64(time.Now().UnixNano()))
	}
	return &Sampler{params: params, src: src}, nil
}

// Params returns the sampler's parameters.
func (s *Sampler) Params() Params {
	return s.params
}

func (s *Sampler) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.src.Float64()
}

// SampleBranch draws a total lifetime in seconds and reports which branch produced it.
func (s *Sampler) SampleBranch() (float64, Branch) {
	u := s.src.Float64()
	branch := BranchLong
	switch {
	case u < s.params.PShort:
		branch = BranchShort
	case u < s.params.PShort+s.params.PMedium:
		branch = BranchMedium
	}
	lo, hi := branch.Range()
	return s.uniform(lo, hi), branch
}

// SampleTotal draws a total lifetime in seconds.
func (s *Sampler) SampleTotal() float64 {
	total, _ := s.SampleBranch()
	return total
}

// SplitLingerFade splits a total lifetime into a fade window. The result always satisfies
// End-Start >= MinFade.
func (s *Sampler) SplitLingerFade(total float64) Window {
	if total < 0 {
		total = 0
	}
	fraction := s.uniform(0, constants.MaxLingerFraction)
	start := total * fraction
	end := math.Max(start+1, total)
	if end-start < s.params.MinFade {
		end = start + s.params.MinFade
	}
	return Window{Start: start, End: end}
}

// Stroke hands out fade windows for the pixels of one batch.
type Stroke struct {
	sampler *Sampler
	base    float64
}

// NewStroke samples the stroke's base lifetime once. With coherence disabled the base is unused
// and every pixel samples on its own.
func (s *Sampler) NewStroke() *Stroke {
	st := &Stroke{sampler: s}
	if s.params.Coherent {
		st.base = s.SampleTotal()
	}
	return st
}

// Base returns the shared lifetime, 0 when the stroke is not coherent.
func (st *Stroke) Base() float64 {
	return st.base
}

// Next returns the fade window for the next pixel of the stroke.
func (st *Stroke) Next() Window {
	s := st.sampler
	if !s.params.Coherent {
		return s.SplitLingerFade(s.SampleTotal())
	}
	j := s.params.Jitter
	total := st.base * s.uniform(1-j, 1+j)
	return s.SplitLingerFade(total)
}
