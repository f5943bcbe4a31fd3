// Package geometry holds the axis-aligned box primitives shared by the
// model decoders and the ensemble merger.
package geometry

import "math"

// Epsilon keeps the IoU denominator away from zero for degenerate boxes.
const Epsilon = 1e-6

// Box is an axis-aligned bounding box in pixel coordinates: x1, y1, x2, y2.
// It marshals to JSON as a four element array.
type Box [4]float64

// NewBox builds a Box from its corner coordinates.
func NewBox(x1, y1, x2, y2 float64) Box {
	return Box{x1, y1, x2, y2}
}

// Width returns x2-x1, which is negative for an inverted box.
func (b Box) Width() float64 { return b[2] - b[0] }

// Height returns y2-y1, which is negative for an inverted box.
func (b Box) Height() float64 { return b[3] - b[1] }

// Area returns the box area, or 0 if either side is not positive.
func (b Box) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Valid reports whether all coordinates are finite and the box has x1<x2, y1<y2.
func (b Box) Valid() bool {
	for _, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b[0] < b[2] && b[1] < b[3]
}

// Clip clamps the box into [0,width]x[0,height].
func (b Box) Clip(width, height float64) Box {
	return Box{
		clamp(b[0], 0, width),
		clamp(b[1], 0, height),
		clamp(b[2], 0, width),
		clamp(b[3], 0, height),
	}
}

// IoU returns the intersection over union of a and b.
//
// The denominator is areaA + areaB - intersection + Epsilon. The result is
// 0 when the boxes do not overlap or when either box has no positive area,
// and it is symmetric in its arguments.
func IoU(a, b Box) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA == 0 || areaB == 0 {
		return 0
	}

	x1 := math.Max(a[0], b[0])
	y1 := math.Max(a[1], b[1])
	x2 := math.Min(a[2], b[2])
	y2 := math.Min(a[3], b[3])

	inter := math.Max(0, x2-x1) * math.Max(0, y2-y1)
	if inter == 0 {
		return 0
	}

	return inter / (areaA + areaB - inter + Epsilon)
}

// WeightedAverage blends two boxes coordinate by coordinate using the
// confidences as weights. Each output coordinate lies between the two
// corresponding inputs.
func WeightedAverage(a Box, confA float64, b Box, confB float64) Box {
	total := confA + confB
	if total == 0 {
		confA, confB, total = 1, 1, 2
	}

	var out Box
	for i := range out {
		v := (a[i]*confA + b[i]*confB) / total
		// rounding can push v a hair outside [min,max]
		out[i] = clamp(v, math.Min(a[i], b[i]), math.Max(a[i], b[i]))
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
