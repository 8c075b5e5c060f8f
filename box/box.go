// Package box provides the axis-aligned bounding box primitives used by the
// training loss: conversions between center-size and corner formats,
// anchor-relative distance coding, and IoU variants.
//
// Boxes are 4 element float32 slices.  Corner format is (x1, y1, x2, y2),
// center-size format is (cx, cy, w, h).
package box

// XYWHToXYXY converts a box from center-size format to corner format.  The
// src and dst slices may share the same underlying array.
func XYWHToXYXY(dst, src []float32) {
	cx, cy := src[0], src[1]
	hw, hh := src[2]/2, src[3]/2

	dst[0] = cx - hw
	dst[1] = cy - hh
	dst[2] = cx + hw
	dst[3] = cy + hh
}

// DistToBox combines left-top-right-bottom distances relative to an anchor
// point into a corner format box written to dst.
func DistToBox(dst []float32, ax, ay, left, top, right, bottom float32) {
	dst[0] = ax - left
	dst[1] = ay - top
	dst[2] = ax + right
	dst[3] = ay + bottom
}

// BoxToDist converts a corner format box into left-top-right-bottom distances
// relative to an anchor point.  Distances are clamped to [0, maxDist] so they
// stay inside the distribution bin range.
func BoxToDist(b []float32, ax, ay, maxDist float32) (left, top, right, bottom float32) {
	left = Clamp(ax-b[0], 0, maxDist)
	top = Clamp(ay-b[1], 0, maxDist)
	right = Clamp(b[2]-ax, 0, maxDist)
	bottom = Clamp(b[3]-ay, 0, maxDist)

	return left, top, right, bottom
}

// Clamp restricts val to be within the range min and max
func Clamp(val, min, max float32) float32 {

	if val > min {

		if val < max {
			return val
		}

		return max
	}

	return min
}
