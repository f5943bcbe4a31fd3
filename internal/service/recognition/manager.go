// Package recognition turns uploaded images into recognition operations:
// it runs the detection engine per image, assembles the operation, hands
// it to the publisher and notifies live viewers.
package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aerotool/internal/logger"
	"aerotool/internal/model"
	"aerotool/internal/service/detection"

	"github.com/gofrs/uuid"
)

// ErrNoImages is returned when a batch contains no usable image.
var ErrNoImages = errors.New("no supported images provided")

// Detector runs the detection pipeline on one image.
type Detector interface {
	Detect(ctx context.Context, data []byte, opts detection.Options) (*detection.Result, error)
}

// Publisher emits a finished operation to the persistence side.
type Publisher interface {
	Publish(op *model.RecognitionOperation)
}

// Broadcaster pushes a message to every live viewer.
type Broadcaster interface {
	Broadcast(message []byte)
}

// FileResult pairs an uploaded file with its detection result.
type FileResult struct {
	FileName string            `json:"filename"`
	Result   *detection.Result `json:"result"`
}

// Batch is the outcome of one recognition request.
type Batch struct {
	Operation *model.RecognitionOperation
	Results   []FileResult
}

type Manager struct {
	detector  Detector
	publisher Publisher
	viewers   Broadcaster
	settings  *Settings
	toolset   string
	logger    *logger.Logger
	now       func() time.Time
}

func NewManager(detector Detector, publisher Publisher, viewers Broadcaster, settings *Settings, toolset string, logger *logger.Logger) *Manager {
	return &Manager{
		detector:  detector,
		publisher: publisher,
		viewers:   viewers,
		settings:  settings,
		toolset:   toolset,
		logger:    logger,
		now:       time.Now,
	}
}

func (m *Manager) Settings() *Settings {
	return m.settings
}

// Recognize runs detection on every supported upload with the threshold
// current at call time. Unsupported or undecodable files are skipped; a
// model failure fails the whole batch. The resulting operation is published
// in the background before Recognize returns.
func (m *Manager) Recognize(ctx context.Context, uploads []Upload, toolset string) (*Batch, error) {
	opts := m.settings.Options()
	if toolset == "" {
		toolset = m.toolset
	}

	batch := &Batch{}
	images := make([]model.ImageResult, 0, len(uploads))
	for _, u := range uploads {
		if !IsSupportedImage(u.FileName) {
			m.logger.Warning("Skipping unsupported file %s", u.FileName)
			continue
		}

		res, err := m.detector.Detect(ctx, u.Data, opts)
		if errors.Is(err, detection.ErrInvalidImage) {
			m.logger.Warning("Skipping %s: %v", u.FileName, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("detection failed for %s: %w", u.FileName, err)
		}

		batch.Results = append(batch.Results, FileResult{FileName: u.FileName, Result: res})
		images = append(images, model.ImageResult{
			ImageID:         newID(),
			ImageURL:        res.ImagePath,
			FileName:        u.FileName,
			ImageBase64:     res.ImageBase64,
			DetectionTime:   res.ProcessingTimeMs,
			ImageConfidence: model.AverageConfidence(res.Detections),
			Results:         model.ResultsFromDetections(res.Detections),
		})
	}

	if len(images) == 0 {
		return nil, ErrNoImages
	}

	batch.Operation = &model.RecognitionOperation{
		ID:          newID(),
		Timestamp:   m.now(),
		Toolset:     toolset,
		Recognition: opts.Threshold,
		Images:      images,
		Summary:     model.Summarize(images),
	}

	m.publisher.Publish(payload(batch.Operation))
	m.notify(batch.Operation)

	m.logger.Info("Operation %s: %d image(s), average match %.3f",
		batch.Operation.ID, len(images), batch.Operation.Summary.AverageMatch)
	return batch, nil
}

// payload is the published form of op. Encoded images are left out; the
// annotated files are referenced by URL.
func payload(op *model.RecognitionOperation) *model.RecognitionOperation {
	out := *op
	out.Images = make([]model.ImageResult, len(op.Images))
	for i, img := range op.Images {
		img.ImageBase64 = ""
		out.Images[i] = img
	}
	return &out
}

type liveMessage struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Toolset   string        `json:"toolset"`
	Summary   model.Summary `json:"summary"`
}

func (m *Manager) notify(op *model.RecognitionOperation) {
	if m.viewers == nil {
		return
	}

	msg, err := json.Marshal(liveMessage{
		ID:        op.ID,
		Timestamp: op.Timestamp,
		Toolset:   op.Toolset,
		Summary:   op.Summary,
	})
	if err != nil {
		m.logger.Error("Failed to encode live message: %v", err)
		return
	}
	m.viewers.Broadcast(msg)
}

func newID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id.String()
}
