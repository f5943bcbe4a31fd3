// Package ensemble reconciles the outputs of two independently trained
// detectors into a single detection list.
//
// The merge is deliberately asymmetric: every detection of the first list
// is matched against the second, while the second list only contributes
// leftovers that do not overlap the accumulated output. Merge(a, b) and
// Merge(b, a) are therefore not expected to agree.
package ensemble

import (
	"aerotool/internal/geometry"
	"aerotool/internal/model"
)

const (
	// MergeThreshold is the minimum IoU for two cross-model detections to be fused.
	MergeThreshold = 0.8
	// LeftoverThreshold bounds the IoU a second-model detection may have
	// against the output before it is considered already covered.
	LeftoverThreshold = 0.5
	// SuppressionThreshold is the per-class NMS IoU cutoff of the final pass.
	SuppressionThreshold = 0.6
)

// Thresholds groups the three IoU cutoffs used by MergeWith.
type Thresholds struct {
	Merge       float64
	Leftover    float64
	Suppression float64
}

// DefaultThresholds returns the thresholds used by Merge.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Merge:       MergeThreshold,
		Leftover:    LeftoverThreshold,
		Suppression: SuppressionThreshold,
	}
}

// Merge combines a (first model) and b (second model) with the default thresholds.
func Merge(a, b []model.Detection) []model.Detection {
	return MergeWith(a, b, DefaultThresholds())
}

// MergeWith combines a and b:
//
//  1. each detection of a is paired with the detection of b of highest IoU,
//     the earliest one in b winning ties;
//  2. pairs at or above t.Merge are fused, everything else of a is kept as is;
//  3. each detection of b whose IoU against every output entry is below
//     t.Leftover is appended;
//  4. the result goes through per-class suppression at t.Suppression.
//
// Boxes must be finite and non-inverted; the function does not check.
func MergeWith(a, b []model.Detection, t Thresholds) []model.Detection {
	out := make([]model.Detection, 0, len(a)+len(b))

	for _, det := range a {
		match, iou := bestMatch(det, b)
		if match >= 0 && iou >= t.Merge {
			out = append(out, fuse(det, b[match]))
			continue
		}
		out = append(out, det)
	}

	for _, det := range b {
		if covered(det, out, t.Leftover) {
			continue
		}
		out = append(out, det)
	}

	return SuppressPerClass(out, t.Suppression)
}

// bestMatch returns the index in candidates with maximum IoU against det and
// that IoU, or -1 when nothing overlaps.
func bestMatch(det model.Detection, candidates []model.Detection) (int, float64) {
	best, bestIoU := -1, 0.0
	for i, c := range candidates {
		iou := geometry.IoU(det.BBox, c.BBox)
		if iou > bestIoU {
			best, bestIoU = i, iou
		}
	}
	return best, bestIoU
}

func fuse(a, b model.Detection) model.Detection {
	merged := model.Detection{
		BBox:       geometry.WeightedAverage(a.BBox, a.Confidence, b.BBox, b.Confidence),
		Confidence: (a.Confidence + b.Confidence) / 2,
		Class:      a.Class,
		Color:      a.Color,
	}
	if a.Class != b.Class && b.Confidence > a.Confidence {
		merged.Class = b.Class
		merged.Color = b.Color
	}
	return merged
}

func covered(det model.Detection, out []model.Detection, threshold float64) bool {
	for _, o := range out {
		if geometry.IoU(det.BBox, o.BBox) >= threshold {
			return true
		}
	}
	return false
}
