package model

import "aerotool/internal/geometry"

// Detection is a single predicted object: location, class label, confidence
// and the display color derived from the class.
type Detection struct {
	BBox       geometry.Box `json:"bbox"`
	Confidence float64      `json:"confidence"`
	Class      string       `json:"class"`
	Color      string       `json:"color,omitempty"`
}

// RawDetection is one row of a model's own output before class ids are
// resolved against the model's label vocabulary.
type RawDetection struct {
	BBox       geometry.Box
	Confidence float64
	ClassID    int
}

// AverageConfidence returns the mean confidence of the detections, 0 if none.
func AverageConfidence(detections []Detection) float64 {
	if len(detections) == 0 {
		return 0
	}

	var sum float64
	for _, d := range detections {
		sum += d.Confidence
	}
	return sum / float64(len(detections))
}
