// Package embed implements the instance embedding loss primitives: L2
// normalisation of embedding rows and the direct and relational distance
// terms computed over selected prediction/target embedding pairs.
package embed

import (
	"github.com/chewxy/math32"
)

// NormalizeRows scales each dim-length row of data to unit L2 norm in place.
// Zero rows are left unchanged to preserve the padding sentinel.
func NormalizeRows(data []float32, dim int) {

	for off := 0; off+dim <= len(data); off += dim {

		var sumSquares float32

		for _, v := range data[off : off+dim] {
			sumSquares += v * v
		}

		if sumSquares == 0 {
			// avoid /0
			continue
		}

		inv := 1 / math32.Sqrt(sumSquares)

		for i := off; i < off+dim; i++ {
			data[i] *= inv
		}
	}
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {

	var sumSquares float32

	for _, x := range v {
		sumSquares += x * x
	}

	return math32.Sqrt(sumSquares)
}

// Distance returns the direct embedding loss between n paired rows of pred
// and target: the mean squared element-wise distance.  An empty selection
// yields 0.
func Distance(pred, target []float32, n, dim int) float32 {

	if n == 0 {
		return 0
	}

	var sum float64

	for i := 0; i < n*dim; i++ {
		d := float64(pred[i] - target[i])
		sum += d * d
	}

	return float32(sum / float64(n*dim))
}
