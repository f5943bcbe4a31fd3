package ai

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"runtime"
	"sync"

	"aerotool/internal/logger"
	"aerotool/internal/model"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// letterboxFill is the padding color used by ultralytics exports.
var letterboxFill = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// ONNXModel runs a YOLO network through onnxruntime. Input and output
// tensors are bound to the session once, so Predict calls are serialized.
type ONNXModel struct {
	mu        sync.Mutex
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	output    *ort.Tensor[float32]
	names     []string
	inputSize int
	logger    *logger.Logger
}

func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		runtimeErr = ort.InitializeEnvironment()
	})
	return runtimeErr
}

// anchorCount is the number of predictions a YOLOv8 head emits for a
// square input: one per cell of the stride 8, 16 and 32 grids.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		n += cells * cells
	}
	return n
}

func NewONNXModel(modelPath, libraryPath string, names []string, inputSize int, logger *logger.Logger) (*ONNXModel, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if err := initRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("error initializing onnxruntime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	options.SetIntraOpNumThreads(runtime.NumCPU())
	options.SetInterOpNumThreads(1)

	size := int64(inputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(4+len(names)), int64(anchorCount(inputSize)))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	logger.Info("ONNX session for %s initialized with %d classes", modelPath, len(names))
	return &ONNXModel{
		session:   session,
		input:     inputTensor,
		output:    outputTensor,
		names:     names,
		inputSize: inputSize,
		logger:    logger,
	}, nil
}

func (m *ONNXModel) Names() []string {
	return m.names
}

func (m *ONNXModel) Predict(img image.Image, threshold float64) ([]model.RawDetection, error) {
	if m.session == nil {
		return nil, ErrModelNotLoaded
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, &ProcessingError{Message: "image has no pixels"}
	}
	tr := Letterbox(w, h, m.inputSize)
	canvas := letterbox(img, tr, m.inputSize)

	m.mu.Lock()
	fillInput(canvas, m.input.GetData(), m.inputSize)
	if err := m.session.Run(); err != nil {
		m.mu.Unlock()
		return nil, &ProcessingError{Message: "model inference", Cause: err}
	}
	output := make([]float32, len(m.output.GetData()))
	copy(output, m.output.GetData())
	m.mu.Unlock()

	dets, err := DecodeYOLO(output, len(m.names), tr, w, h, threshold)
	if err != nil {
		return nil, &ProcessingError{Message: "process predictions", Cause: err}
	}
	return dets, nil
}

func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	if m.input != nil {
		m.input.Destroy()
	}
	if m.output != nil {
		m.output.Destroy()
	}
	return nil
}

func letterbox(img image.Image, tr Transform, size int) *image.NRGBA {
	bounds := img.Bounds()
	newW := int(float64(bounds.Dx())*tr.ScaleX + 0.5)
	newH := int(float64(bounds.Dy())*tr.ScaleY + 0.5)

	resized := imaging.Resize(img, newW, newH, imaging.Linear)
	canvas := imaging.New(size, size, letterboxFill)
	return imaging.Paste(canvas, resized, image.Pt(int(tr.PadX), int(tr.PadY)))
}

// fillInput writes the image as planar RGB scaled to [0,1].
func fillInput(img *image.NRGBA, dst []float32, size int) {
	channelSize := size * size
	for y := 0; y < size; y++ {
		row := img.Pix[y*img.Stride:]
		offset := y * size
		for x := 0; x < size; x++ {
			i := offset + x
			p := row[x*4:]
			dst[i] = float32(p[0]) / 255.0
			dst[channelSize+i] = float32(p[1]) / 255.0
			dst[channelSize*2+i] = float32(p[2]) / 255.0
		}
	}
}
