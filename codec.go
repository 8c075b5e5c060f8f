package detloss

import (
	"github.com/chewxy/math32"

	"github.com/detgo/go-detloss/box"
)

// boxCodec decodes per position box distributions into corner format boxes
// relative to anchor points.
type boxCodec struct {
	regMax int
	// proj is the fixed projection vector [0 .. regMax-1] the softmaxed bin
	// distribution is reduced against
	proj []float32
}

func newBoxCodec(regMax int) boxCodec {

	proj := make([]float32, regMax)

	for i := range proj {
		proj[i] = float32(i)
	}

	return boxCodec{regMax: regMax, proj: proj}
}

// decode converts distribution logits of batch*anchors*4*regMax values into
// corner format boxes in grid units.  With a single bin the logits already
// are the ltrb distances and pass through unchanged.
func (c boxCodec) decode(dist []float32, anchors Anchors, batch int) []float32 {

	numAnchors := anchors.Total
	out := make([]float32, batch*numAnchors*4)

	var ltrb [4]float32

	for b := 0; b < batch; b++ {
		for p := 0; p < numAnchors; p++ {

			off := (b*numAnchors + p) * 4 * c.regMax

			if c.regMax > 1 {
				for side := 0; side < 4; side++ {
					ltrb[side] = c.expectedBin(
						dist[off+side*c.regMax : off+(side+1)*c.regMax])
				}
			} else {
				copy(ltrb[:], dist[off:off+4])
			}

			ax, ay := anchors.Points[p*2], anchors.Points[p*2+1]
			box.DistToBox(out[(b*numAnchors+p)*4:(b*numAnchors+p)*4+4],
				ax, ay, ltrb[0], ltrb[1], ltrb[2], ltrb[3])
		}
	}

	return out
}

// expectedBin applies softmax over the bin logits and returns the expected
// bin index under that distribution.
func (c boxCodec) expectedBin(logits []float32) float32 {

	max := logits[0]

	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}

	var expSum, acc float32

	for i, v := range logits {
		e := math32.Exp(v - max)
		expSum += e
		acc += e * c.proj[i]
	}

	return acc / expSum
}
