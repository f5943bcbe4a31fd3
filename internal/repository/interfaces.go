package repository

import (
	"context"
	"errors"

	"aerotool/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// OperationRepository defines the interface for recognition operation storage.
type OperationRepository interface {
	// Create operations
	SaveOperation(ctx context.Context, op *model.RecognitionOperation) (int64, error)

	// Read operations
	GetOperation(id int64) (*model.RecognitionOperation, error)
	ListOperations(page, limit int) ([]model.OperationSummary, error)
	Statistics() (*model.HistoryStatistics, error)
}

// ImageRepository defines the interface for stored image lookups.
type ImageRepository interface {
	GetImageURL(id int64) (string, error)
	GetByOperationID(operationID int64) ([]model.ImageResult, error)
}

// DetectionRepository defines the interface for stored detection lookups.
type DetectionRepository interface {
	GetByImageID(imageID int64) ([]model.RecognitionResult, error)
	GetAllNames() ([]string, error)
}
