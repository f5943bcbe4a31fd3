// Package detection runs both detectors over an image and reconciles their
// outputs into one annotated result.
package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"aerotool/internal/ensemble"
	"aerotool/internal/logger"
	"aerotool/internal/model"
	"aerotool/internal/service/ai"

	"github.com/disintegration/imaging"
)

// FinalConfidenceCutoff is applied to the merged list regardless of the
// per-call threshold the models filtered with.
const FinalConfidenceCutoff = 0.50

var (
	// ErrInvalidThreshold is returned for a threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("threshold must be in (0, 1]")
	// ErrInvalidImage is returned when the input bytes are not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
)

// Options are the per-call inference settings.
type Options struct {
	Threshold float64
}

func (o Options) Validate() error {
	if !(o.Threshold > 0 && o.Threshold <= 1) {
		return ErrInvalidThreshold
	}
	return nil
}

// Renderer produces an encoded annotated copy of an image.
type Renderer interface {
	Render(img image.Image, detections []model.Detection) ([]byte, error)
}

// ImageStore persists an annotated image and returns its public path.
type ImageStore interface {
	Save(data []byte) (string, error)
}

// Result is the outcome of one Detect call.
type Result struct {
	Detections       []model.Detection `json:"detections"`
	ImagePath        string            `json:"image_path"`
	ImageSize        [2]int            `json:"image_size"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	ImageBase64      string            `json:"image_base64"`
}

// Engine holds the two detectors. It keeps no per-call state and is safe
// for concurrent use.
type Engine struct {
	first    ai.Model
	second   ai.Model
	renderer Renderer
	store    ImageStore
	logger   *logger.Logger
}

func NewEngine(first, second ai.Model, renderer Renderer, store ImageStore, logger *logger.Logger) *Engine {
	return &Engine{
		first:    first,
		second:   second,
		renderer: renderer,
		store:    store,
		logger:   logger,
	}
}

// Detect decodes data, runs both models on it concurrently and merges the
// outputs. A failure of either model fails the call.
func (e *Engine) Detect(ctx context.Context, data []byte, opts Options) (*Result, error) {
	start := time.Now()

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		wg      sync.WaitGroup
		outputs [2][]model.Detection
		errs    [2]error
	)
	for i, m := range []ai.Model{e.first, e.second} {
		wg.Add(1)
		go func(i int, m ai.Model) {
			defer wg.Done()
			outputs[i], errs[i] = e.predict(m, img, opts.Threshold)
		}(i, m)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("model %d failed: %w", i+1, err)
		}
	}

	merged := ensemble.Merge(outputs[0], outputs[1])

	detections := make([]model.Detection, 0, len(merged))
	for _, d := range merged {
		if d.Confidence < FinalConfidenceCutoff {
			continue
		}
		d.Color = ai.ColorName(d.Class)
		detections = append(detections, d)
	}
	e.logger.Debug("Merged %d + %d detections into %d, %d above cutoff",
		len(outputs[0]), len(outputs[1]), len(merged), len(detections))

	annotated, err := e.renderer.Render(img, detections)
	if err != nil {
		return nil, fmt.Errorf("failed to render detections: %w", err)
	}

	path, err := e.store.Save(annotated)
	if err != nil {
		return nil, fmt.Errorf("failed to save annotated image: %w", err)
	}

	return &Result{
		Detections:       detections,
		ImagePath:        path,
		ImageSize:        [2]int{width, height},
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		ImageBase64:      base64.StdEncoding.EncodeToString(annotated),
	}, nil
}

// predict runs one model and resolves its class ids. Boxes that are not
// finite or not properly ordered are dropped here so the merge only sees
// valid geometry.
func (e *Engine) predict(m ai.Model, img image.Image, threshold float64) ([]model.Detection, error) {
	raw, err := m.Predict(img, threshold)
	if err != nil {
		return nil, err
	}

	names := m.Names()
	dets := make([]model.Detection, 0, len(raw))
	for _, r := range raw {
		if !r.BBox.Valid() {
			e.logger.Warning("Dropping invalid box %v from model output", r.BBox)
			continue
		}
		if r.ClassID < 0 || r.ClassID >= len(names) {
			e.logger.Warning("Dropping detection with unknown class id %d", r.ClassID)
			continue
		}
		dets = append(dets, model.Detection{
			BBox:       r.BBox,
			Confidence: r.Confidence,
			Class:      names[r.ClassID],
		})
	}
	return dets, nil
}
