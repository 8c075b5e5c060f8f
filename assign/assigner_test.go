package assign

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gridInput builds a single image Input over a 4x4 unit stride grid.  Every
// position predicts a 2x2 box centered on its anchor and the given class
// probabilities.
func gridInput(numClasses, embedSize int, probs []float32) Input {

	const side = 4
	numAnchors := side * side

	in := Input{
		Scores:     make([]float32, numAnchors*numClasses),
		Boxes:      make([]float32, numAnchors*4),
		Embeds:     make([]float32, numAnchors*embedSize),
		Anchors:    make([]float32, numAnchors*2),
		Batch:      1,
		NumAnchors: numAnchors,
		EmbedSize:  embedSize,
	}

	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {

			p := y*side + x
			ax, ay := float32(x)+0.5, float32(y)+0.5

			in.Anchors[p*2] = ax
			in.Anchors[p*2+1] = ay

			in.Boxes[p*4] = ax - 1
			in.Boxes[p*4+1] = ay - 1
			in.Boxes[p*4+2] = ax + 1
			in.Boxes[p*4+3] = ay + 1

			copy(in.Scores[p*numClasses:(p+1)*numClasses], probs)

			// a distinct unit embedding per position
			in.Embeds[p*embedSize] = 1
		}
	}

	return in
}

// addInstance appends one padded ground truth slot to the input.
func addInstance(in *Input, label int, b [4]float32, emb []float32, valid bool) {
	in.GTLabels = append(in.GTLabels, label)
	in.GTBoxes = append(in.GTBoxes, b[:]...)
	in.GTEmbeds = append(in.GTEmbeds, emb...)
	in.GTMask = append(in.GTMask, valid)
	in.MaxBoxes++
}

func TestAssignSingleInstance(t *testing.T) {

	in := gridInput(3, 4, []float32{0.1, 0.9, 0.1})
	addInstance(&in, 1, [4]float32{0.5, 0.5, 3.5, 3.5}, []float32{0, 1, 0, 0}, true)

	a := NewAssigner(10, 3)
	res := a.Assign(in)

	// the four anchors strictly inside the box become foreground
	fg := 0

	for p, f := range res.Foreground {
		if !f {
			assert.Equal(t, Background, res.GTIndex[p])
			assert.Equal(t, 3, res.Labels[p])
			continue
		}

		fg++
		assert.Equal(t, 0, res.GTIndex[p])
		assert.Equal(t, 1, res.Labels[p])

		// target box and embedding copied from the instance
		assert.Equal(t, []float32{0.5, 0.5, 3.5, 3.5}, res.Boxes[p*4:p*4+4])
		assert.Equal(t, []float32{0, 1, 0, 0}, res.Embeds[p*4:p*4+4])

		// soft score only at the instance class, in (0, 1]
		score := res.Scores[p*3+1]
		assert.Greater(t, score, float32(0))
		assert.LessOrEqual(t, score, float32(1))
		assert.Zero(t, res.Scores[p*3])
		assert.Zero(t, res.Scores[p*3+2])
	}

	assert.Equal(t, 4, fg)
}

func TestAssignRespectsTopK(t *testing.T) {

	in := gridInput(3, 4, []float32{0.1, 0.9, 0.1})

	// box covering the whole grid: all 16 anchors are candidates
	addInstance(&in, 1, [4]float32{0, 0, 4, 4}, []float32{1, 0, 0, 0}, true)

	a := NewAssigner(5, 3)
	res := a.Assign(in)

	fg := 0

	for _, f := range res.Foreground {
		if f {
			fg++
		}
	}

	assert.Equal(t, 5, fg)
}

func TestAssignNoValidInstances(t *testing.T) {

	in := gridInput(3, 4, []float32{0.5, 0.5, 0.5})
	addInstance(&in, 0, [4]float32{}, make([]float32, 4), false)

	a := NewAssigner(10, 3)
	res := a.Assign(in)

	for p := 0; p < in.NumAnchors; p++ {
		require.False(t, res.Foreground[p])
		require.Equal(t, Background, res.GTIndex[p])
		require.Equal(t, 3, res.Labels[p])
	}

	for _, s := range res.Scores {
		require.Zero(t, s)
	}
}

func TestAssignResolvesOverlapByIoU(t *testing.T) {

	in := gridInput(3, 4, []float32{0.5, 0.5, 0.5})

	// a small and a large instance both containing the anchor at (1.5, 1.5);
	// the predicted 2x2 box there overlaps the small instance far better
	addInstance(&in, 0, [4]float32{0.5, 0.5, 2.5, 2.5}, []float32{1, 0, 0, 0}, true)
	addInstance(&in, 2, [4]float32{0, 0, 4, 4}, []float32{0, 1, 0, 0}, true)

	a := NewAssigner(10, 3)
	res := a.Assign(in)

	p := 1*4 + 1 // anchor (1.5, 1.5)

	require.True(t, res.Foreground[p])
	assert.Equal(t, 0, res.GTIndex[p], "contested anchor should go to the higher overlap instance")

	// every foreground position is owned by exactly one instance
	counts := map[int]int{}

	for i, f := range res.Foreground {
		if f {
			counts[res.GTIndex[i]]++
		}
	}

	assert.Len(t, counts, 2, "both instances should receive positions")
}
