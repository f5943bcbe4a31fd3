package recognition

import (
	"sync"

	"aerotool/internal/service/detection"
)

// Settings holds the operator-adjustable confidence threshold. Every
// recognition copies the current value into its own detection.Options, so
// an update never affects a call already in progress.
type Settings struct {
	mu        sync.RWMutex
	threshold float64
}

func NewSettings(threshold float64) *Settings {
	return &Settings{threshold: threshold}
}

func (s *Settings) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold replaces the threshold used by subsequent calls.
func (s *Settings) SetThreshold(threshold float64) error {
	if err := (detection.Options{Threshold: threshold}).Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
	return nil
}

// Options returns a snapshot of the settings for one call.
func (s *Settings) Options() detection.Options {
	return detection.Options{Threshold: s.Threshold()}
}
