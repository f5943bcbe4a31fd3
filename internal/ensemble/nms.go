package ensemble

import (
	"sort"

	"aerotool/internal/geometry"
	"aerotool/internal/model"
)

// SuppressPerClass runs greedy non-max suppression independently for every
// class label. Within a class, detections are visited by descending
// confidence (earlier position first on equal confidence); a visited
// detection is kept and every remaining one with IoU >= threshold against
// it is discarded.
//
// Survivors keep their relative order from the input, so a list that
// already satisfies the invariant comes back unchanged.
func SuppressPerClass(detections []model.Detection, threshold float64) []model.Detection {
	if len(detections) == 0 {
		return []model.Detection{}
	}

	groups := make(map[string][]int)
	for i, d := range detections {
		groups[d.Class] = append(groups[d.Class], i)
	}

	keep := make([]bool, len(detections))
	for _, idx := range groups {
		suppressGroup(detections, idx, threshold, keep)
	}

	out := make([]model.Detection, 0, len(detections))
	for i, d := range detections {
		if keep[i] {
			out = append(out, d)
		}
	}
	return out
}

func suppressGroup(detections []model.Detection, idx []int, threshold float64, keep []bool) {
	order := make([]int, len(idx))
	copy(order, idx)
	sort.SliceStable(order, func(i, j int) bool {
		return detections[order[i]].Confidence > detections[order[j]].Confidence
	})

	removed := make([]bool, len(order))
	for i, cur := range order {
		if removed[i] {
			continue
		}
		keep[cur] = true
		for j := i + 1; j < len(order); j++ {
			if removed[j] {
				continue
			}
			if geometry.IoU(detections[cur].BBox, detections[order[j]].BBox) >= threshold {
				removed[j] = true
			}
		}
	}
}
