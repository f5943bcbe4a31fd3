// Package ai holds the detector interface, the YOLO output decoder, the
// onnxruntime backend and the class palette.
package ai

import (
	"errors"
	"fmt"
	"image"

	"aerotool/internal/model"
)

// ErrModelNotLoaded is returned by a backend whose network failed to load.
var ErrModelNotLoaded = errors.New("detection model not loaded")

// Model is one trained detector. Predict returns boxes in the coordinate
// space of img whose confidence is at least threshold; class ids index
// into Names.
type Model interface {
	Predict(img image.Image, threshold float64) ([]model.RawDetection, error)
	Names() []string
	Close() error
}

// ProcessingError describes a failed inference step.
type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}
