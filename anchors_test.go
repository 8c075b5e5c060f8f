package detloss

import (
	"math"
	"testing"
)

// almostEqual checks if two float32 values are approximately equal
func almostEqual(a, b, tolerance float32) bool {
	return float32(math.Abs(float64(a)-float64(b))) <= tolerance
}

// newTestMap builds a zero filled feature map for shape tests.
func newTestMap(batch, channels, height, width int) FeatureMap {
	return FeatureMap{
		Data:     make([]float32, batch*channels*height*width),
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
	}
}

func TestMakeAnchors(t *testing.T) {

	maps := []FeatureMap{
		newTestMap(1, 8, 4, 4),
		newTestMap(1, 8, 2, 2),
	}

	a := MakeAnchors(maps, []float32{8, 16}, 0.5)

	if a.Total != 20 {
		t.Fatalf("got %d anchor positions, want 20", a.Total)
	}

	if len(a.Points) != 40 || len(a.Strides) != 20 {
		t.Fatalf("points/strides length mismatch: %d, %d",
			len(a.Points), len(a.Strides))
	}

	// first position of the fine level
	if !almostEqual(a.Points[0], 0.5, 1e-6) || !almostEqual(a.Points[1], 0.5, 1e-6) {
		t.Errorf("first anchor got (%v, %v), want (0.5, 0.5)", a.Points[0], a.Points[1])
	}

	if a.Strides[0] != 8 {
		t.Errorf("first anchor stride got %v, want 8", a.Strides[0])
	}

	// second position walks the row first
	if !almostEqual(a.Points[2], 1.5, 1e-6) || !almostEqual(a.Points[3], 0.5, 1e-6) {
		t.Errorf("second anchor got (%v, %v), want (1.5, 0.5)", a.Points[2], a.Points[3])
	}

	// first position of the coarse level
	if !almostEqual(a.Points[32], 0.5, 1e-6) || a.Strides[16] != 16 {
		t.Errorf("coarse level start got point %v stride %v",
			a.Points[32], a.Strides[16])
	}
}
