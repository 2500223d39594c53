package align

import "math"

// Pearson computes the Pearson correlation of two equal-length samples.
// ok is false with fewer than two points, mismatched lengths or zero
// variance in either sample.
func Pearson(a, b []float64) (float64, bool) {
	n := len(a)
	if n < 2 || n != len(b) {
		return 0, false
	}

	var meanA, meanB float64
	for i := 0; i < n; i++ {
		meanA += a[i]
		meanB += b[i]
	}
	meanA /= float64(n)
	meanB /= float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0, false
	}
	r := cov / math.Sqrt(varA*varB)
	// clamp numerical noise
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}
