package model

import "time"

// OperationSummary is one row of the operation history listing.
type OperationSummary struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ImageCount    int       `json:"imageCount"`
	DetectionTime int64     `json:"detectionTime"`
	OverallMatch  float64   `json:"overallMatch"`
	Recognition   float64   `json:"recognition"`
	Toolset       string    `json:"toolset"`
}

// HistoryStatistics holds store-wide aggregates.
type HistoryStatistics struct {
	TotalOperations       int     `json:"totalOperations"`
	TotalImages           int     `json:"totalImages"`
	AverageProcessingTime int64   `json:"averageProcessingTime"`
	AverageAccuracy       float64 `json:"averageAccuracy"`
}
