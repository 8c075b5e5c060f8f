// Package assign implements task-aligned assignment of prediction positions
// to ground truth instances.  Each valid instance claims the top-K candidate
// positions inside its box ranked by an alignment metric that combines the
// predicted class confidence with the localisation overlap; positions claimed
// by several instances keep the assignment with the highest overlap.
package assign

import (
	"github.com/chewxy/math32"

	"github.com/detgo/go-detloss/box"
)

const eps = 1e-9

// Background is the instance index reported for unassigned positions.
const Background = -1

// Assigner matches prediction positions to ground truth instances using the
// task-aligned metric score^Alpha * overlap^Beta.
type Assigner struct {
	// TopK is the number of candidate positions considered per instance
	TopK int
	// NumClasses is the number of object classes; it doubles as the
	// background label in Result.Labels
	NumClasses int
	// Alpha is the exponent on classification confidence
	Alpha float32
	// Beta is the exponent on localisation overlap
	Beta float32
}

// NewAssigner returns an Assigner with the alignment exponents used by the
// detection head (alpha 0.5, beta 6.0).
func NewAssigner(topK, numClasses int) *Assigner {
	return &Assigner{
		TopK:       topK,
		NumClasses: numClasses,
		Alpha:      0.5,
		Beta:       6.0,
	}
}

// Input bundles one batch of predictions and padded ground truth.  All
// coordinates are in the same absolute units.  Rows with GTMask false are
// padding and never assigned.
type Input struct {
	// Scores are sigmoid activated class probabilities, batch*anchors*classes
	Scores []float32
	// Boxes are decoded predicted boxes in corner format, batch*anchors*4
	Boxes []float32
	// Embeds are unit normalised predicted embeddings, batch*anchors*embedSize
	Embeds []float32
	// Anchors are the anchor point coordinates, anchors*2
	Anchors []float32
	// GTLabels is the class per padded instance slot, batch*maxBoxes
	GTLabels []int
	// GTBoxes are instance boxes in corner format, batch*maxBoxes*4
	GTBoxes []float32
	// GTEmbeds are instance embeddings, batch*maxBoxes*embedSize
	GTEmbeds []float32
	// GTMask marks the valid (non padding) instance slots, batch*maxBoxes
	GTMask []bool

	Batch      int
	NumAnchors int
	MaxBoxes   int
	EmbedSize  int
}

// Result holds the per position assignment targets.
type Result struct {
	// Labels is the assigned class per position, NumClasses for background
	Labels []int
	// Boxes are the target boxes in corner format, batch*anchors*4
	Boxes []float32
	// Scores are the soft target class scores scaled by assignment quality,
	// batch*anchors*classes
	Scores []float32
	// Embeds are the target embeddings, batch*anchors*embedSize
	Embeds []float32
	// Foreground marks positions assigned to an instance, batch*anchors
	Foreground []bool
	// GTIndex is the assigned instance slot per position, Background when
	// unassigned
	GTIndex []int
}

// Assign matches every prediction position of the batch.  Images are
// independent; an image with no valid instances is entirely background.
func (a *Assigner) Assign(in Input) Result {

	n := in.Batch * in.NumAnchors

	res := Result{
		Labels:     make([]int, n),
		Boxes:      make([]float32, n*4),
		Scores:     make([]float32, n*a.NumClasses),
		Embeds:     make([]float32, n*in.EmbedSize),
		Foreground: make([]bool, n),
		GTIndex:    make([]int, n),
	}

	for i := range res.Labels {
		res.Labels[i] = a.NumClasses
		res.GTIndex[i] = Background
	}

	for b := 0; b < in.Batch; b++ {
		a.assignImage(&in, &res, b)
	}

	return res
}

// assignImage runs the full assignment for one image of the batch.
func (a *Assigner) assignImage(in *Input, res *Result, b int) {

	numAnchors := in.NumAnchors
	maxBoxes := in.MaxBoxes
	nc := a.NumClasses

	var valid []int

	for j := 0; j < maxBoxes; j++ {
		if in.GTMask[b*maxBoxes+j] {
			valid = append(valid, j)
		}
	}

	if len(valid) == 0 {
		return
	}

	// alignment metric and overlap per (instance, position), zero outside
	// candidate positions
	align := make([]float32, maxBoxes*numAnchors)
	overlaps := make([]float32, maxBoxes*numAnchors)

	for _, j := range valid {

		gt := in.GTBoxes[(b*maxBoxes+j)*4 : (b*maxBoxes+j)*4+4]
		label := in.GTLabels[b*maxBoxes+j]

		for p := 0; p < numAnchors; p++ {

			ax, ay := in.Anchors[p*2], in.Anchors[p*2+1]

			// candidate positions need their anchor inside the box
			if ax-gt[0] <= eps || ay-gt[1] <= eps ||
				gt[2]-ax <= eps || gt[3]-ay <= eps {
				continue
			}

			pb := in.Boxes[(b*numAnchors+p)*4 : (b*numAnchors+p)*4+4]
			iou := box.CIoU(pb, gt)

			if iou < 0 {
				iou = 0
			}

			score := in.Scores[(b*numAnchors+p)*nc+label]

			align[j*numAnchors+p] = math32.Pow(score, a.Alpha) *
				math32.Pow(iou, a.Beta)
			overlaps[j*numAnchors+p] = iou
		}
	}

	// keep only the top-K candidates of each instance
	mask := make([]bool, maxBoxes*numAnchors)

	for _, j := range valid {
		a.topkCandidates(align[j*numAnchors:(j+1)*numAnchors],
			mask[j*numAnchors:(j+1)*numAnchors])
	}

	// positions claimed by several instances keep the highest overlap
	assigned := make([]int, numAnchors)

	for p := 0; p < numAnchors; p++ {

		best := Background
		var bestOverlap float32

		for _, j := range valid {

			if !mask[j*numAnchors+p] {
				continue
			}

			if best == Background || overlaps[j*numAnchors+p] > bestOverlap {
				best = j
				bestOverlap = overlaps[j*numAnchors+p]
			}
		}

		assigned[p] = best

		if best == Background {
			continue
		}

		for _, j := range valid {
			if j != best {
				mask[j*numAnchors+p] = false
			}
		}
	}

	// per instance maxima over the surviving assignments, used to rescale
	// the soft target scores
	posAlign := make([]float32, maxBoxes)
	posOverlap := make([]float32, maxBoxes)

	for _, j := range valid {
		for p := 0; p < numAnchors; p++ {

			if !mask[j*numAnchors+p] {
				continue
			}

			if align[j*numAnchors+p] > posAlign[j] {
				posAlign[j] = align[j*numAnchors+p]
			}

			if overlaps[j*numAnchors+p] > posOverlap[j] {
				posOverlap[j] = overlaps[j*numAnchors+p]
			}
		}
	}

	for p := 0; p < numAnchors; p++ {

		j := assigned[p]

		if j == Background {
			continue
		}

		gi := b*numAnchors + p
		slot := b*maxBoxes + j
		label := in.GTLabels[slot]

		res.Foreground[gi] = true
		res.GTIndex[gi] = j
		res.Labels[gi] = label

		copy(res.Boxes[gi*4:gi*4+4], in.GTBoxes[slot*4:slot*4+4])
		copy(res.Embeds[gi*in.EmbedSize:(gi+1)*in.EmbedSize],
			in.GTEmbeds[slot*in.EmbedSize:(slot+1)*in.EmbedSize])

		// the best aligned position of each instance receives its best
		// overlap as target score, the rest scale down proportionally
		res.Scores[gi*nc+label] = align[j*numAnchors+p] * posOverlap[j] /
			(posAlign[j] + eps)
	}
}

// topkCandidates marks the positions holding the TopK largest alignment
// metrics.  Metrics at or below eps never qualify and exact ties go to the
// lower position index.
func (a *Assigner) topkCandidates(metric []float32, mask []bool) {

	for k := 0; k < a.TopK; k++ {

		best := -1
		var bestVal float32

		for p, m := range metric {

			if mask[p] || m <= eps {
				continue
			}

			if best == -1 || m > bestVal {
				best = p
				bestVal = m
			}
		}

		if best == -1 {
			return
		}

		mask[best] = true
	}
}
