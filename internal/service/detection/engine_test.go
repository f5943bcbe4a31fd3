package detection

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sync"
	"testing"

	"aerotool/internal/geometry"
	"aerotool/internal/logger"
	"aerotool/internal/model"
)

type fakeModel struct {
	names []string
	dets  []model.RawDetection
	err   error
	// echo returns one detection whose confidence is the threshold it was
	// called with
	echo bool
}

func (f *fakeModel) Predict(_ image.Image, threshold float64) ([]model.RawDetection, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.echo {
		return []model.RawDetection{{BBox: geometry.Box{10, 10, 50, 50}, Confidence: threshold}}, nil
	}
	out := make([]model.RawDetection, 0, len(f.dets))
	for _, d := range f.dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeModel) Names() []string { return f.names }
func (f *fakeModel) Close() error    { return nil }

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	last  []model.Detection
}

func (r *fakeRenderer) Render(_ image.Image, dets []model.Detection) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.last = dets
	return []byte("annotated"), nil
}

type fakeStore struct{}

func (fakeStore) Save([]byte) (string, error) { return "/static/results/detected_test.jpg", nil }

func testImage(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func newTestEngine(first, second *fakeModel, r *fakeRenderer) *Engine {
	return NewEngine(first, second, r, fakeStore{}, logger.NewWithWriter(io.Discard))
}

var tools = []string{"Pliers", "Shernica", "hammer"}

func TestDetect_MergesBothModels(t *testing.T) {
	first := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{10, 10, 50, 50}, Confidence: 0.9, ClassID: 0},
	}}
	second := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{11, 10, 51, 50}, Confidence: 0.7, ClassID: 0},
		{BBox: geometry.Box{60, 60, 90, 70}, Confidence: 0.45, ClassID: 1},
	}}
	renderer := &fakeRenderer{}

	res, err := newTestEngine(first, second, renderer).Detect(context.Background(), testImage(t, 100, 80), Options{Threshold: 0.3})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(res.Detections) != 1 {
		t.Fatalf("Expected 1 detection after cutoff, got %d: %+v", len(res.Detections), res.Detections)
	}
	d := res.Detections[0]
	if d.Class != "Pliers" || d.Color != "yellow" {
		t.Errorf("Expected yellow Pliers, got %s %s", d.Color, d.Class)
	}
	if math.Abs(d.Confidence-0.8) > 1e-9 {
		t.Errorf("Expected merged confidence 0.8, got %v", d.Confidence)
	}
	if res.ImageSize != [2]int{100, 80} {
		t.Errorf("Expected image size [100 80], got %v", res.ImageSize)
	}
	if res.ImagePath != "/static/results/detected_test.jpg" {
		t.Errorf("Unexpected image path %s", res.ImagePath)
	}
	if res.ImageBase64 != base64.StdEncoding.EncodeToString([]byte("annotated")) {
		t.Errorf("Unexpected encoded image %s", res.ImageBase64)
	}
	if renderer.calls != 1 || len(renderer.last) != 1 {
		t.Errorf("Expected one render of the final detections, got %d calls", renderer.calls)
	}
	if res.ProcessingTimeMs < 0 {
		t.Errorf("Expected non-negative processing time, got %d", res.ProcessingTimeMs)
	}
}

func TestDetect_CutoffIndependentOfThreshold(t *testing.T) {
	first := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{10, 10, 50, 50}, Confidence: 0.45, ClassID: 2},
	}}
	second := &fakeModel{names: tools}

	res, err := newTestEngine(first, second, &fakeRenderer{}).Detect(context.Background(), testImage(t, 64, 64), Options{Threshold: 0.1})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Detections) != 0 {
		t.Errorf("Expected detections below 0.5 to be cut, got %+v", res.Detections)
	}
}

func TestDetect_UnknownClassGetsDefaultColor(t *testing.T) {
	first := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{10, 10, 50, 50}, Confidence: 0.95, ClassID: 2},
	}}

	res, err := newTestEngine(first, &fakeModel{names: tools}, &fakeRenderer{}).Detect(context.Background(), testImage(t, 64, 64), Options{Threshold: 0.5})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Detections) != 1 || res.Detections[0].Color != "red" {
		t.Errorf("Expected one red detection, got %+v", res.Detections)
	}
}

func TestDetect_DropsInvalidBoxes(t *testing.T) {
	first := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{math.NaN(), 0, 10, 10}, Confidence: 0.9, ClassID: 0},
		{BBox: geometry.Box{40, 40, 20, 20}, Confidence: 0.9, ClassID: 0},
		{BBox: geometry.Box{1, 1, 20, 20}, Confidence: 0.9, ClassID: 7},
		{BBox: geometry.Box{1, 1, 20, 20}, Confidence: 0.9, ClassID: 1},
	}}

	res, err := newTestEngine(first, &fakeModel{names: tools}, &fakeRenderer{}).Detect(context.Background(), testImage(t, 64, 64), Options{Threshold: 0.5})
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Detections) != 1 || res.Detections[0].Class != "Shernica" {
		t.Errorf("Expected only the valid Shernica box, got %+v", res.Detections)
	}
}

func TestDetect_ModelFailureFailsCall(t *testing.T) {
	boom := errors.New("inference exploded")
	first := &fakeModel{names: tools, dets: []model.RawDetection{
		{BBox: geometry.Box{10, 10, 50, 50}, Confidence: 0.9, ClassID: 0},
	}}
	second := &fakeModel{names: tools, err: boom}
	renderer := &fakeRenderer{}

	res, err := newTestEngine(first, second, renderer).Detect(context.Background(), testImage(t, 64, 64), Options{Threshold: 0.5})
	if !errors.Is(err, boom) {
		t.Errorf("Expected model error, got %v", err)
	}
	if res != nil {
		t.Errorf("Expected no partial result, got %+v", res)
	}
	if renderer.calls != 0 {
		t.Errorf("Expected no rendering after failure, got %d calls", renderer.calls)
	}
}

func TestDetect_InvalidInput(t *testing.T) {
	e := newTestEngine(&fakeModel{names: tools}, &fakeModel{names: tools}, &fakeRenderer{})

	if _, err := e.Detect(context.Background(), []byte("not an image"), Options{Threshold: 0.5}); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage, got %v", err)
	}

	for _, th := range []float64{0, -0.1, 1.5, math.NaN()} {
		if _, err := e.Detect(context.Background(), testImage(t, 8, 8), Options{Threshold: th}); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("Threshold %v: expected ErrInvalidThreshold, got %v", th, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Detect(ctx, testImage(t, 8, 8), Options{Threshold: 0.5}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestDetect_ConcurrentCallsKeepTheirOwnThreshold(t *testing.T) {
	first := &fakeModel{names: tools, echo: true}
	second := &fakeModel{names: tools, echo: true}
	e := newTestEngine(first, second, &fakeRenderer{})
	data := testImage(t, 64, 64)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		threshold := 0.6
		if i%2 == 1 {
			threshold = 0.9
		}
		wg.Add(1)
		go func(threshold float64) {
			defer wg.Done()
			res, err := e.Detect(context.Background(), data, Options{Threshold: threshold})
			if err != nil {
				errs <- err
				return
			}
			if len(res.Detections) != 1 || math.Abs(res.Detections[0].Confidence-threshold) > 1e-9 {
				errs <- errors.New("detection confidence does not match the call's threshold")
			}
		}(threshold)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}
