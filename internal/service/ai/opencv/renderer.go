package opencv

import (
	"fmt"
	"image"

	"aerotool/internal/logger"
	"aerotool/internal/model"
	"aerotool/internal/service/ai"

	"gocv.io/x/gocv"
)

// Renderer draws detection boxes in their palette colors and encodes the
// result as JPEG.
type Renderer struct {
	logger *logger.Logger
}

func NewRenderer(logger *logger.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// Render returns an annotated JPEG copy of img. The source is not modified.
func (r *Renderer) Render(img image.Image, detections []model.Detection) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert image: %w", err)
	}
	defer mat.Close()

	thickness := ai.StrokeWidth(mat.Cols(), mat.Rows())
	for _, det := range detections {
		rect := image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3]))
		if err := gocv.Rectangle(&mat, rect, ai.RGBA(det.Color), thickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		r.logger.Error("Failed to encode image: %v", err)
		return nil, err
	}
	defer buf.Close()

	encoded := make([]byte, buf.Len())
	copy(encoded, buf.GetBytes())
	return encoded, nil
}
