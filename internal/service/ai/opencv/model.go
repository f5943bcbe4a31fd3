// Package opencv runs the detectors and draws annotations with OpenCV.
package opencv

import (
	"fmt"
	"image"
	"os"
	"sync"

	"aerotool/internal/logger"
	"aerotool/internal/model"
	"aerotool/internal/service/ai"

	"gocv.io/x/gocv"
)

// Model runs an ONNX exported YOLO network through the OpenCV DNN
// module. The network is not safe for concurrent use, so Predict calls are
// serialized.
type Model struct {
	mu        sync.Mutex
	net       gocv.Net
	names     []string
	inputSize int
	logger    *logger.Logger
}

// NewModel loads the network and sets backend/target preferences.
func NewModel(modelPath string, names []string, inputSize int, logger *logger.Logger) (*Model, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	logger.Info("Detection network %s initialized with %d classes", modelPath, len(names))
	return &Model{
		net:       net,
		names:     names,
		inputSize: inputSize,
		logger:    logger,
	}, nil
}

func (m *Model) Names() []string {
	return m.names
}

// Predict runs the network on img and returns the boxes at or above
// threshold.
func (m *Model) Predict(img image.Image, threshold float64) ([]model.RawDetection, error) {
	if m.net.Empty() {
		return nil, ai.ErrModelNotLoaded
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, &ai.ProcessingError{Message: "failed to convert image", Cause: err}
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, &ai.ProcessingError{Message: "converted image is empty"}
	}

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(m.inputSize, m.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.mu.Lock()
	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	m.mu.Unlock()
	defer output.Close()

	// [1, 4+classes, anchors]
	dims := output.Size()
	if len(dims) != 3 || dims[1] != 4+len(m.names) {
		return nil, &ai.ProcessingError{Message: fmt.Sprintf("unexpected output shape %v for %d classes", dims, len(m.names))}
	}

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, &ai.ProcessingError{Message: "failed to read network output", Cause: err}
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dets, err := ai.DecodeYOLO(data, len(m.names), ai.Stretch(w, h, m.inputSize), w, h, threshold)
	if err != nil {
		return nil, &ai.ProcessingError{Message: "failed to decode network output", Cause: err}
	}
	return dets, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
