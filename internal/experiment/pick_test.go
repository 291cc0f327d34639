package experiment_test

import (
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/forgeline/forgeline/internal/experiment"
	"github.com/stretchr/testify/assert"
)

// seqSource replays a fixed list of draws, cycling when exhausted.
type seqSource struct {
	mu     sync.Mutex
	values []float64
	i      int
}

func (s *seqSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

func variants(weights ...float64) []experiment.Variant {
	out := make([]experiment.Variant, len(weights))
	for i, w := range weights {
		out[i] = experiment.Variant{ID: string(rune('a' + i)), Weight: w}
	}
	return out
}

func TestPick_BucketBoundaries(t *testing.T) {
	vs := variants(20, 30, 50) // total 100

	tests := []struct {
		draw float64
		want int
	}{
		{0.0, 0},
		{0.19, 0},
		{0.20, 0}, // cumulative 20 >= 20
		{0.21, 1},
		{0.50, 1},
		{0.51, 2},
		{0.999, 2},
	}

	for _, tt := range tests {
		got := experiment.Pick(vs, &seqSource{values: []float64{tt.draw}})
		assert.Equal(t, tt.want, got, "draw %v", tt.draw)
	}
}

func TestPick_WeightsNeedNotSumTo100(t *testing.T) {
	vs := variants(1, 3) // 25% / 75%

	assert.Equal(t, 0, experiment.Pick(vs, &seqSource{values: []float64{0.24}}))
	assert.Equal(t, 1, experiment.Pick(vs, &seqSource{values: []float64{0.26}}))
}

func TestPick_SkipsZeroWeight(t *testing.T) {
	vs := variants(0, 5)

	assert.Equal(t, 1, experiment.Pick(vs, &seqSource{values: []float64{0}}))
}

func TestPick_AllZeroIsUniform(t *testing.T) {
	vs := variants(0, 0, 0, 0)

	assert.Equal(t, 0, experiment.Pick(vs, &seqSource{values: []float64{0.1}}))
	assert.Equal(t, 1, experiment.Pick(vs, &seqSource{values: []float64{0.3}}))
	assert.Equal(t, 2, experiment.Pick(vs, &seqSource{values: []float64{0.6}}))
	assert.Equal(t, 3, experiment.Pick(vs, &seqSource{values: []float64{0.99}}))
}

func TestPick_Empty(t *testing.T) {
	assert.Equal(t, -1, experiment.Pick(nil, experiment.DefaultSource))
}

func TestPick_ConvergesToProportions(t *testing.T) {
	vs := variants(10, 30, 60, 100) // 5%, 15%, 30%, 50%
	src := rand.New(rand.NewPCG(42, 7))

	const draws = 200000
	counts := make([]int, len(vs))
	for i := 0; i < draws; i++ {
		counts[experiment.Pick(vs, src)]++
	}

	total := 200.0
	for i, v := range vs {
		want := v.Weight / total
		got := float64(counts[i]) / draws
		assert.InDelta(t, want, got, 0.01, "variant %d share", i)
	}
}
