package model

import "time"

// RecognitionOperation is one inference batch as it travels over the
// durable channel and as it is reconstructed from the store.
type RecognitionOperation struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	Toolset     string        `json:"toolset"`
	Recognition float64       `json:"recognition"`
	Images      []ImageResult `json:"images"`
	Summary     Summary       `json:"summary"`
}

// ImageResult holds the outcome for one image of an operation.
type ImageResult struct {
	ImageID         string              `json:"imageId,omitempty"`
	ImageURL        string              `json:"imageUrl"`
	FileName        string              `json:"fileName"`
	ImageBase64     string              `json:"imageBase64,omitempty"`
	DetectionTime   int64               `json:"detectionTime"`
	ImageConfidence float64             `json:"imageConfidence"`
	Results         []RecognitionResult `json:"results"`
}

// RecognitionResult is the stored projection of a Detection.
type RecognitionResult struct {
	ID         int64   `json:"id,omitempty"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Color      string  `json:"color"`
}

// Summary aggregates the per-image values of an operation.
type Summary struct {
	TotalImages        int     `json:"totalImages"`
	TotalDetectionTime int64   `json:"totalDetectionTime"`
	AverageMatch       float64 `json:"averageMatch"`
}

// Summarize computes the summary from the images: image count, the sum of
// detection times and the mean of the per-image confidences.
func Summarize(images []ImageResult) Summary {
	s := Summary{TotalImages: len(images)}
	if len(images) == 0 {
		return s
	}

	var confSum float64
	for _, img := range images {
		s.TotalDetectionTime += img.DetectionTime
		confSum += img.ImageConfidence
	}
	s.AverageMatch = confSum / float64(len(images))
	return s
}

// ResultsFromDetections projects detections onto their stored form.
func ResultsFromDetections(detections []Detection) []RecognitionResult {
	results := make([]RecognitionResult, 0, len(detections))
	for _, d := range detections {
		results = append(results, RecognitionResult{
			Name:       d.Class,
			Confidence: d.Confidence,
			Color:      d.Color,
		})
	}
	return results
}
