package detloss

import (
	"github.com/detgo/go-detloss/box"
)

// bboxLoss computes the localisation and distribution regression terms over
// foreground positions, each weighted by the assignment quality of its
// position.
type bboxLoss struct {
	regMax int
}

// compute returns the CIoU and distribution focal terms plus the per
// position IoU values.  IoU entries are only written at foreground
// positions; background entries stay zero and must be masked before use.
func (l bboxLoss) compute(predDist, predBoxes []float32, anchors Anchors,
	targetBoxes, targetScores []float32, norm float32,
	foreground []bool, batch, numClasses int) (lossIoU, lossDFL float32, ious []float32) {

	numAnchors := anchors.Total
	ious = make([]float32, batch*numAnchors)

	var sumIoU, sumDFL float64

	for i := 0; i < batch*numAnchors; i++ {

		if !foreground[i] {
			continue
		}

		// the summed target class score captures assignment confidence
		var weight float32

		for _, s := range targetScores[i*numClasses : (i+1)*numClasses] {
			weight += s
		}

		iou := box.CIoU(predBoxes[i*4:i*4+4], targetBoxes[i*4:i*4+4])
		ious[i] = iou
		sumIoU += float64((1 - iou) * weight)

		if l.regMax > 1 {

			p := i % numAnchors
			ax, ay := anchors.Points[p*2], anchors.Points[p*2+1]
			maxDist := float32(l.regMax-1) - 0.01

			left, top, right, bottom := box.BoxToDist(
				targetBoxes[i*4:i*4+4], ax, ay, maxDist)

			dfl := l.distFocal(predDist[i*4*l.regMax:(i+1)*4*l.regMax],
				[4]float32{left, top, right, bottom})

			sumDFL += float64(dfl * weight)
		}
	}

	lossIoU = float32(sumIoU) / norm
	lossDFL = float32(sumDFL) / norm

	return lossIoU, lossDFL, ious
}

// distFocal returns the distribution focal term for one position: the cross
// entropy between each side's predicted bin distribution and its fractional
// target distance, interpolated between the two nearest bins and averaged
// over the four sides.
func (l bboxLoss) distFocal(dist []float32, target [4]float32) float32 {

	var sum float32

	for side := 0; side < 4; side++ {

		logits := dist[side*l.regMax : (side+1)*l.regMax]

		// targets are clamped to [0, regMax-1-0.01] so both bins exist
		t := target[side]
		lo := int(t)
		hi := lo + 1
		weightLo := float32(hi) - t
		weightHi := 1 - weightLo

		lse := logSumExp(logits)
		sum += -(logits[lo]-lse)*weightLo - (logits[hi]-lse)*weightHi
	}

	return sum / 4
}
