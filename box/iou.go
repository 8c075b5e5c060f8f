package box

import (
	"github.com/chewxy/math32"
)

// eps guards divisions against degenerate zero-area boxes
const eps = 1e-7

// IoU returns the Intersection over Union of two corner format boxes.
func IoU(a, b []float32) float32 {

	iw := math32.Min(a[2], b[2]) - math32.Max(a[0], b[0])

	if iw <= 0 {
		return 0
	}

	ih := math32.Min(a[3], b[3]) - math32.Max(a[1], b[1])

	if ih <= 0 {
		return 0
	}

	inter := iw * ih
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])

	return inter / (areaA + areaB - inter + eps)
}

// CIoU returns the Complete IoU of two corner format boxes, which augments
// the plain overlap ratio with penalties for center distance and aspect
// ratio difference.  Values fall in (-1, 1] and may be negative for
// non-overlapping boxes.
func CIoU(a, b []float32) float32 {

	w1, h1 := a[2]-a[0], a[3]-a[1]
	w2, h2 := b[2]-b[0], b[3]-b[1]

	iw := math32.Min(a[2], b[2]) - math32.Max(a[0], b[0])
	ih := math32.Min(a[3], b[3]) - math32.Max(a[1], b[1])

	var inter float32

	if iw > 0 && ih > 0 {
		inter = iw * ih
	}

	union := w1*h1 + w2*h2 - inter + eps
	iou := inter / union

	// diagonal of the smallest enclosing box
	cw := math32.Max(a[2], b[2]) - math32.Min(a[0], b[0])
	ch := math32.Max(a[3], b[3]) - math32.Min(a[1], b[1])
	c2 := cw*cw + ch*ch + eps

	// squared distance between box centers
	dx := (b[0] + b[2] - a[0] - a[2]) / 2
	dy := (b[1] + b[3] - a[1] - a[3]) / 2
	rho2 := dx*dx + dy*dy

	// aspect ratio consistency
	d := math32.Atan(w2/(h2+eps)) - math32.Atan(w1/(h1+eps))
	v := 4 / (math32.Pi * math32.Pi) * d * d
	alpha := v / (v - iou + 1 + eps)

	return iou - (rho2/c2 + v*alpha)
}
