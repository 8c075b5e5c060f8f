package embed

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Relational returns the structural embedding loss between n paired rows of
// pred and target: the pairwise L2 distance matrices of both sets are each
// normalised by their mean off-diagonal distance, then compared element-wise
// with a Huber penalty.  Selections with fewer than two rows carry no
// relational structure and yield 0.
func Relational(pred, target []float32, n, dim int) float32 {

	if n < 2 {
		return 0
	}

	dp := pairwiseDistances(pred, n, dim)
	dt := pairwiseDistances(target, n, dim)

	normalizeByMean(dp, n)
	normalizeByMean(dt, n)

	var sum float64

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {

			if i == j {
				continue
			}

			sum += huber(dp.At(i, j) - dt.At(i, j))
		}
	}

	return float32(sum / float64(n*(n-1)))
}

// pairwiseDistances builds the n x n matrix of L2 distances between rows
// using the Gram matrix identity ||a-b||^2 = ||a||^2 - 2<a,b> + ||b||^2.
func pairwiseDistances(rows []float32, n, dim int) *mat.Dense {

	e := mat.NewDense(n, dim, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			e.Set(i, j, float64(rows[i*dim+j]))
		}
	}

	var gram mat.Dense
	gram.Mul(e, e.T())

	d := mat.NewDense(n, n, nil)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {

			sq := gram.At(i, i) - 2*gram.At(i, j) + gram.At(j, j)

			// rounding can push tiny squared distances below zero
			if sq < 0 {
				sq = 0
			}

			d.Set(i, j, math.Sqrt(sq))
		}
	}

	return d
}

// normalizeByMean divides every entry by the mean off-diagonal distance,
// making the relational term invariant to the scale of the embedding space.
func normalizeByMean(d *mat.Dense, n int) {

	var sum float64

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				sum += d.At(i, j)
			}
		}
	}

	mean := sum / float64(n*(n-1))

	if mean == 0 {
		return
	}

	d.Scale(1/mean, d)
}

// huber is the smooth L1 penalty with unit transition point.
func huber(x float64) float64 {

	if x < 0 {
		x = -x
	}

	if x < 1 {
		return 0.5 * x * x
	}

	return x - 0.5
}
