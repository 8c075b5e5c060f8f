package detloss

import (
	"testing"
)

func TestSelectTopKPerInstance(t *testing.T) {

	// one image, 8 positions, one class, a single instance owning five
	// positions of increasing quality
	const numAnchors, numClasses, topK = 8, 1, 3

	foreground := []bool{true, true, true, true, true, false, false, false}
	gtIndex := []int{0, 0, 0, 0, 0, -1, -1, -1}
	ious := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0, 0, 0}
	scores := []float32{1, 1, 1, 1, 1, 0, 0, 0}

	selected := selectEmbedPositions(ious, scores, foreground, gtIndex,
		1, numAnchors, numClasses, topK)

	want := []bool{false, false, true, true, true, false, false, false}

	for i := range want {
		if selected[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, selected[i], want[i])
		}
	}
}

func TestSelectFewerThanTopK(t *testing.T) {

	const numAnchors, numClasses, topK = 4, 1, 3

	foreground := []bool{true, true, false, false}
	gtIndex := []int{0, 0, -1, -1}
	ious := []float32{0.9, 0.8, 0, 0}
	scores := []float32{1, 1, 0, 0}

	selected := selectEmbedPositions(ious, scores, foreground, gtIndex,
		1, numAnchors, numClasses, topK)

	if !selected[0] || !selected[1] {
		t.Error("instances with fewer positions than topK select all of them")
	}

	if selected[2] || selected[3] {
		t.Error("background positions must never be selected")
	}
}

func TestSelectTieBreaksOnLowerIndex(t *testing.T) {

	const numAnchors, numClasses, topK = 4, 1, 1

	foreground := []bool{true, true, true, true}
	gtIndex := []int{0, 0, 0, 0}
	ious := []float32{0.5, 0.5, 0.5, 0.5}
	scores := []float32{1, 1, 1, 1}

	selected := selectEmbedPositions(ious, scores, foreground, gtIndex,
		1, numAnchors, numClasses, topK)

	want := []bool{true, false, false, false}

	for i := range want {
		if selected[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, selected[i], want[i])
		}
	}
}

func TestSelectMultipleInstancesAndImages(t *testing.T) {

	// two images with two instances each, quality chosen so the per
	// instance winners are unambiguous
	const numAnchors, numClasses, topK = 4, 1, 1

	foreground := []bool{
		true, true, true, true,
		true, true, false, false,
	}
	gtIndex := []int{
		0, 0, 1, 1,
		1, 0, -1, -1,
	}
	ious := []float32{
		0.2, 0.9, 0.9, 0.2,
		0.7, 0.7, 0, 0,
	}
	scores := []float32{
		1, 1, 1, 1,
		1, 1, 0, 0,
	}

	selected := selectEmbedPositions(ious, scores, foreground, gtIndex,
		2, numAnchors, numClasses, topK)

	want := []bool{
		false, true, true, false,
		true, true, false, false,
	}

	for i := range want {
		if selected[i] != want[i] {
			t.Errorf("position %d: got %v, want %v", i, selected[i], want[i])
		}
	}
}

func TestSelectNoForeground(t *testing.T) {

	const numAnchors, numClasses, topK = 4, 1, 3

	foreground := make([]bool, numAnchors)
	gtIndex := []int{-1, -1, -1, -1}

	selected := selectEmbedPositions(make([]float32, numAnchors),
		make([]float32, numAnchors), foreground, gtIndex,
		1, numAnchors, numClasses, topK)

	for i, s := range selected {
		if s {
			t.Errorf("position %d selected with no foreground", i)
		}
	}
}
