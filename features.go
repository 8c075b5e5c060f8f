package detloss

import (
	"fmt"

	"github.com/chewxy/math32"
)

// FeatureMap is one network head output level in NCHW layout.
type FeatureMap struct {
	// Data holds Batch*Channels*Height*Width values in NCHW order
	Data     []float32
	Batch    int
	Channels int
	Height   int
	Width    int
}

// NewFeatureMap wraps an NCHW float32 buffer as a feature map.
func NewFeatureMap(data []float32, batch, channels, height, width int) (FeatureMap, error) {

	want := batch * channels * height * width

	if len(data) != want {
		return FeatureMap{}, fmt.Errorf("feature map buffer has %d values, want %d",
			len(data), want)
	}

	return FeatureMap{
		Data:     data,
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
	}, nil
}

// NewFeatureMapFloat16 converts a raw half-precision NCHW buffer, as emitted
// by mixed precision training, into a float32 feature map.
func NewFeatureMapFloat16(data []uint16, batch, channels, height, width int) (FeatureMap, error) {

	want := batch * channels * height * width

	if len(data) != want {
		return FeatureMap{}, fmt.Errorf("feature map buffer has %d values, want %d",
			len(data), want)
	}

	buf := make([]float32, len(data))
	Float16ToFloat32(buf, data)

	return FeatureMap{
		Data:     buf,
		Batch:    batch,
		Channels: channels,
		Height:   height,
		Width:    width,
	}, nil
}

// at returns the value at (b, c, y, x).
func (f FeatureMap) at(b, c, y, x int) float32 {
	return f.Data[((b*f.Channels+c)*f.Height+y)*f.Width+x]
}

// cells returns the number of grid positions in the map.
func (f FeatureMap) cells() int {
	return f.Height * f.Width
}

// flattenHeads gathers width channels starting at chanOffset from every
// level into a position major slice of batch*positions*width values.
// Positions run level by level in row major order, matching MakeAnchors.
func flattenHeads(maps []FeatureMap, chanOffset, width int, dst []float32) {

	total := 0

	for _, m := range maps {
		total += m.cells()
	}

	batch := maps[0].Batch
	pos := 0

	for _, m := range maps {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {

				for b := 0; b < batch; b++ {

					base := (b*total + pos) * width

					for c := 0; c < width; c++ {
						dst[base+c] = m.at(b, chanOffset+c, y, x)
					}
				}

				pos++
			}
		}
	}
}

// sigmoid maps a logit to a probability.
func sigmoid(x float32) float32 {
	return 1 / (1 + math32.Exp(-x))
}

// bceWithLogits is the numerically stable binary cross entropy between a
// logit x and a soft target z.
func bceWithLogits(x, z float32) float32 {
	return math32.Max(x, 0) - x*z + math32.Log1p(math32.Exp(-math32.Abs(x)))
}

// logSumExp returns log(sum(exp(v))) without overflowing on large logits.
func logSumExp(v []float32) float32 {

	max := v[0]

	for _, x := range v[1:] {
		if x > max {
			max = x
		}
	}

	var sum float32

	for _, x := range v {
		sum += math32.Exp(x - max)
	}

	return max + math32.Log(sum)
}
