// Package stats checks observed variant shares against configured weights.
package stats

import "math"

// Interval is a closed range of proportions within [0, 1].
type Interval struct {
	Lower float64
	Upper float64
}

func (i Interval) Contains(p float64) bool {
	return p >= i.Lower && p <= i.Upper
}

// WilsonInterval returns the Wilson score interval for hits out of draws at
// the given two-sided confidence. It stays inside [0, 1] for small samples
// and extreme shares, unlike the normal approximation.
func WilsonInterval(hits, draws int, confidence float64) Interval {
	if draws <= 0 {
		return Interval{}
	}

	z := ZScore(confidence)
	p := float64(hits) / float64(draws)
	n := float64(draws)

	denominator := 1 + z*z/n
	center := (p + z*z/(2*n)) / denominator
	spread := (z / denominator) * math.Sqrt(p*(1-p)/n+z*z/(4*n*n))

	return Interval{
		Lower: math.Max(0, center-spread),
		Upper: math.Min(1, center+spread),
	}
}

// ShareCheck compares one variant's observed draws with its expected share.
type ShareCheck struct {
	Observed float64
	Expected float64
	Interval Interval
}

// Consistent reports whether the expected share falls inside the interval.
func (c ShareCheck) Consistent() bool {
	return c.Interval.Contains(c.Expected)
}

func CheckShare(hits, draws int, expected, confidence float64) ShareCheck {
	check := ShareCheck{
		Expected: expected,
		Interval: WilsonInterval(hits, draws, confidence),
	}
	if draws > 0 {
		check.Observed = float64(hits) / float64(draws)
	}
	return check
}

// ZScore returns the two-sided critical value for a confidence level in
// (0, 1), e.g. 1.96 for 0.95.
func ZScore(confidence float64) float64 {
	if confidence <= 0 {
		return 0
	}
	if confidence >= 1 {
		return math.Inf(1)
	}
	return inverseNormalCDF((1 + confidence) / 2)
}

// inverseNormalCDF uses Acklam's rational approximation, accurate to about
// 1e-9 over (0, 1).
func inverseNormalCDF(p float64) float64 {
	a := [...]float64{-3.969683028665376e+01, 2.209460984245205e+02,
		-2.759285104469687e+02, 1.383577518672690e+02,
		-3.066479806614716e+01, 2.506628277459239e+00}
	b := [...]float64{-5.447609879822406e+01, 1.615858368580409e+02,
		-1.556989798598866e+02, 6.680131188771972e+01,
		-1.328068155288572e+01}
	c := [...]float64{-7.784894002430293e-03, -3.223964580411365e-01,
		-2.400758277161838e+00, -2.549732539343734e+00,
		4.374664141464968e+00, 2.938163982698783e+00}
	d := [...]float64{7.784695709041462e-03, 3.224671290700398e-01,
		2.445134137142996e+00, 3.754408661907416e+00}

	const pLow = 0.02425

	switch {
	case p < pLow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p <= 1-pLow:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	default:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	}
}
