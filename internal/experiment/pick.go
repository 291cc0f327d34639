package experiment

import "math/rand/v2"

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource is safe for concurrent use.
var DefaultSource Source = globalSource{}

// Pick draws a variant index proportionally to weight. Weights do not need
// to sum to any particular value; when they all are zero the draw is uniform.
// Returns -1 for an empty slice.
func Pick(variants []Variant, src Source) int {
	if len(variants) == 0 {
		return -1
	}

	total := 0.0
	for _, v := range variants {
		total += v.Weight
	}

	if total <= 0 {
		i := int(src.Float64() * float64(len(variants)))
		if i >= len(variants) {
			i = len(variants) - 1
		}
		return i
	}

	r := src.Float64() * total
	cumulative := 0.0
	for i, v := range variants {
		if v.Weight <= 0 {
			continue
		}
		cumulative += v.Weight
		if cumulative >= r {
			return i
		}
	}

	// float drift on the last bucket
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return i
		}
	}
	return len(variants) - 1
}
