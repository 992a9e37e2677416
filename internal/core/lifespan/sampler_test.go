package lifespan

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource replays a fixed sequence of draws.
type fixedSource struct {
	values []float64
	i      int
}

func (f *fixedSource) Float64() float64 {
	v := f.values[f.i%len(f.values)]
	f.i++
	return v
}

func newTestSampler(t *testing.T, params Params, seed uint64) *Sampler {
	t.Helper()
	s, err := NewSampler(params, NewSource(seed))
	require.NoError(t, err)
	return s
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *Params)
		wantErr bool
	}{
		{name: "defaults", mutate: func(p *Params) {}},
		{name: "probabilities do not sum to one", mutate: func(p *Params) { p.PLong = 0.5 }, wantErr: true},
		{name: "negative probability", mutate: func(p *Params) { p.PShort, p.PMedium = -0.1, 1.05 }, wantErr: true},
		{name: "zero min fade", mutate: func(p *Params) { p.MinFade = 0 }, wantErr: true},
		{name: "jitter of one", mutate: func(p *Params) { p.Jitter = 1 }, wantErr: true},
		{name: "all short", mutate: func(p *Params) { p.PShort, p.PMedium, p.PLong = 1, 0, 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParams)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSampleTotalBranchFrequencies(t *testing.T) {
	params := DefaultParams()
	s := newTestSampler(t, params, 42)

	const n = 10000
	counts := map[Branch]int{}
	for i := 0; i < n; i++ {
		total, branch := s.SampleBranch()
		lo, hi := branch.Range()
		require.GreaterOrEqual(t, total, lo, "branch %s", branch)
		require.LessOrEqual(t, total, hi, "branch %s", branch)
		counts[branch]++
	}

	// Four standard deviations of a binomial proportion at n=10000 stays under 0.02 for all p.
	const tolerance = 0.02
	assert.InDelta(t, params.PShort, float64(counts[BranchShort])/n, tolerance)
	assert.InDelta(t, params.PMedium, float64(counts[BranchMedium])/n, tolerance)
	assert.InDelta(t, params.PLong, float64(counts[BranchLong])/n, tolerance)
}

func TestSampleTotalPicksBranchByDraw(t *testing.T) {
	params := DefaultParams()

	tests := []struct {
		name   string
		draws  []float64
		branch Branch
	}{
		{name: "low draw is short", draws: []float64{0.1, 0.5}, branch: BranchShort},
		{name: "middle draw is medium", draws: []float64{0.8, 0.5}, branch: BranchMedium},
		{name: "high draw is long", draws: []float64{0.99, 0.5}, branch: BranchLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSampler(params, &fixedSource{values: tt.draws})
			require.NoError(t, err)
			total, branch := s.SampleBranch()
			assert.Equal(t, tt.branch, branch)
			lo, hi := tt.branch.Range()
			assert.InDelta(t, (lo+hi)/2, total, 1e-6)
		})
	}
}

func TestSplitLingerFadeFloor(t *testing.T) {
	s := newTestSampler(t, DefaultParams(), 7)

	totals := []float64{0, 0.5, 1, 10, 29, 31, 120, 3600, 86400 * 21}
	for _, total := range totals {
		for i := 0; i < 1000; i++ {
			w := s.SplitLingerFade(total)
			require.GreaterOrEqual(t, w.Start, 0.0)
			require.Greater(t, w.End, w.Start)
			require.GreaterOrEqual(t, w.End-w.Start, s.Params().MinFade-1e-9, "total=%v", total)
			require.LessOrEqual(t, w.Start, total*0.25+1e-9)
		}
	}
}

func TestSplitLingerFadeExactValues(t *testing.T) {
	s, err := NewSampler(DefaultParams(), &fixedSource{values: []float64{0.4}})
	require.NoError(t, err)

	// fraction = 0.4 * 0.25 = 0.1
	w := s.SplitLingerFade(1000)
	assert.InDelta(t, 100, w.Start, 1e-9)
	assert.InDelta(t, 1000, w.End, 1e-9)

	// short totals are pushed out to the fade floor
	w = s.SplitLingerFade(20)
	assert.InDelta(t, 2, w.Start, 1e-9)
	assert.InDelta(t, 2+s.Params().MinFade, w.End, 1e-9)
}

func TestStrokeCoherence(t *testing.T) {
	params := DefaultParams()
	params.PShort, params.PMedium, params.PLong = 0, 1, 0
	s := newTestSampler(t, params, 99)

	stroke := s.NewStroke()
	base := stroke.Base()
	require.Greater(t, base, 0.0)

	for i := 0; i < 500; i++ {
		w := stroke.Next()
		// End equals the jittered total whenever the floor does not apply.
		assert.GreaterOrEqual(t, w.End, base*(1-params.Jitter)-1e-6)
		assert.LessOrEqual(t, w.End, base*(1+params.Jitter)+1e-6)
	}
}

func TestStrokeWithoutCoherenceSamplesIndependently(t *testing.T) {
	params := DefaultParams()
	params.Coherent = false
	params.PShort, params.PMedium, params.PLong = 0.5, 0, 0.5
	s := newTestSampler(t, params, 5)

	stroke := s.NewStroke()
	assert.Zero(t, stroke.Base())

	short, long := 0, 0
	for i := 0; i < 200; i++ {
		w := stroke.Next()
		if w.End <= 3600 {
			short++
		} else {
			long++
		}
	}
	assert.Positive(t, short)
	assert.Positive(t, long)
}

func TestSourceDeterminism(t *testing.T) {
	a, b := NewSource(11), NewSource(11)
	for i := 0; i < 100; i++ {
		va, vb := a.Float64(), b.Float64()
		require.Equal(t, va, vb)
		require.False(t, math.IsNaN(va))
	}
}
