package cluster

import "github.com/rotisserie/eris"

// DefaultSensitivity is the knee-detection sensitivity; larger values demand
// a more pronounced elbow before one is reported.
const DefaultSensitivity = 1.0

// KneeLocator finds the knee of a convex, decreasing curve (the shape of a
// distortion-vs-k elbow plot) using the Kneedle method: normalize the curve
// into the unit square, flip it to concave increasing, and look for a local
// maximum of the difference against the diagonal that subsequent points fall
// away from by more than the sensitivity threshold.
//
// It returns the x value at the knee; ok is false when the curve has no
// detectable knee.
func KneeLocator(xs []float64, ys []float64, sensitivity float64) (knee float64, ok bool, err error) {
	if len(xs) != len(ys) {
		return 0, false, eris.Errorf("cluster: knee locator got %d x values and %d y values", len(xs), len(ys))
	}
	if len(xs) < 3 {
		return 0, false, eris.Errorf("cluster: knee locator needs at least 3 points, got %d", len(xs))
	}
	if sensitivity <= 0 {
		sensitivity = DefaultSensitivity
	}

	n := len(xs)
	xn := normalize(xs)
	yn := normalize(ys)

	// Flip the convex decreasing curve to concave increasing, then measure
	// its height above the diagonal.
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = (1 - yn[i]) - xn[i]
	}

	// Threshold decay per Kneedle: S times the mean x spacing.
	decay := sensitivity / float64(n-1)

	for i := 1; i < n-1; i++ {
		if diff[i] < diff[i-1] || diff[i] < diff[i+1] {
			continue // not a local maximum
		}
		threshold := diff[i] - decay
		for j := i + 1; j < n; j++ {
			if diff[j] > diff[i] {
				break // a higher maximum lies ahead
			}
			if diff[j] < threshold {
				return xs[i], true, nil
			}
		}
	}
	return 0, false, nil
}

// normalize maps values onto [0, 1]. A constant series maps to all zeros.
func normalize(vs []float64) []float64 {
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]float64, len(vs))
	if hi == lo {
		return out
	}
	for i, v := range vs {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}
