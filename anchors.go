package detloss

// Anchors holds one anchor point per prediction position across all feature
// levels plus the stride of the level each position came from.  Points are
// in grid units with the cell center offset applied, matching the coordinate
// space of decoded box distances.
type Anchors struct {
	// Points are interleaved x,y coordinates, Total*2 values
	Points []float32
	// Strides is the feature level stride per position
	Strides []float32
	// Total is the number of positions across all levels
	Total int
}

// MakeAnchors generates the anchor points for the given feature maps.
// Positions run level by level in row major order, one stride entry per
// position.
func MakeAnchors(maps []FeatureMap, strides []float32, offset float32) Anchors {

	total := 0

	for _, m := range maps {
		total += m.cells()
	}

	a := Anchors{
		Points:  make([]float32, 0, total*2),
		Strides: make([]float32, 0, total),
		Total:   total,
	}

	for i, m := range maps {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				a.Points = append(a.Points, float32(x)+offset, float32(y)+offset)
				a.Strides = append(a.Strides, strides[i])
			}
		}
	}

	return a
}
