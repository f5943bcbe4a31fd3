package ai

import (
	"fmt"
	"math"
	"sort"

	"aerotool/internal/geometry"
	"aerotool/internal/model"
)

// OwnSuppressionThreshold is the IoU above which a detector discards the
// weaker of two same-class boxes from its own output.
const OwnSuppressionThreshold = 0.7

// Transform maps network input coordinates back onto the source image:
// source = (input - Pad) / Scale.
type Transform struct {
	ScaleX, ScaleY float64
	PadX, PadY     float64
}

// Stretch is the transform for an image resized to size x size without
// keeping its aspect ratio.
func Stretch(width, height, size int) Transform {
	return Transform{
		ScaleX: float64(size) / float64(width),
		ScaleY: float64(size) / float64(height),
	}
}

// Letterbox is the transform for an image scaled to fit size x size with
// its aspect ratio kept and the remainder padded evenly on both sides.
func Letterbox(width, height, size int) Transform {
	scale := math.Min(float64(size)/float64(width), float64(size)/float64(height))
	newW := math.Round(float64(width) * scale)
	newH := math.Round(float64(height) * scale)
	return Transform{
		ScaleX: scale,
		ScaleY: scale,
		PadX:   math.Floor((float64(size) - newW) / 2),
		PadY:   math.Floor((float64(size) - newH) / 2),
	}
}

// DecodeYOLO turns a YOLOv8 output tensor of shape [1, 4+numClasses,
// anchors] into detections on a width x height image. Every anchor takes
// its best class; anchors below threshold are skipped and the rest go
// through per-class suppression.
func DecodeYOLO(output []float32, numClasses int, tr Transform, width, height int, threshold float64) ([]model.RawDetection, error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("invalid class count %d", numClasses)
	}
	rows := 4 + numClasses
	if len(output) == 0 || len(output)%rows != 0 {
		return nil, fmt.Errorf("unexpected output length %d for %d classes", len(output), numClasses)
	}
	anchors := len(output) / rows

	var dets []model.RawDetection
	for i := 0; i < anchors; i++ {
		classID, score := 0, float32(-1)
		for c := 0; c < numClasses; c++ {
			if v := output[(4+c)*anchors+i]; v > score {
				score = v
				classID = c
			}
		}
		if float64(score) < threshold {
			continue
		}

		cx := float64(output[i])
		cy := float64(output[anchors+i])
		w := float64(output[2*anchors+i])
		h := float64(output[3*anchors+i])

		box := geometry.Box{
			(cx - w/2 - tr.PadX) / tr.ScaleX,
			(cy - h/2 - tr.PadY) / tr.ScaleY,
			(cx + w/2 - tr.PadX) / tr.ScaleX,
			(cy + h/2 - tr.PadY) / tr.ScaleY,
		}.Clip(float64(width), float64(height))
		if !box.Valid() {
			continue
		}

		dets = append(dets, model.RawDetection{
			BBox:       box,
			Confidence: float64(score),
			ClassID:    classID,
		})
	}

	return suppressRaw(dets, OwnSuppressionThreshold), nil
}

// suppressRaw keeps, per class, the strongest boxes and drops any box
// overlapping an already kept one by threshold or more. Output is sorted
// by descending confidence.
func suppressRaw(dets []model.RawDetection, threshold float64) []model.RawDetection {
	sort.SliceStable(dets, func(i, j int) bool {
		return dets[i].Confidence > dets[j].Confidence
	})

	kept := make([]model.RawDetection, 0, len(dets))
	for _, d := range dets {
		overlaps := false
		for _, k := range kept {
			if k.ClassID == d.ClassID && geometry.IoU(k.BBox, d.BBox) >= threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
