package storage

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"aerotool/internal/config"
	"aerotool/internal/logger"

	"github.com/gofrs/uuid"
)

// PublicPrefix is the URL prefix under which annotated images are served.
const PublicPrefix = "/static/results/"

// ErrOutsideResults is returned for a path that does not point into the
// results directory.
var ErrOutsideResults = errors.New("path is outside the results directory")

// ResultService writes annotated images into the results directory.
type ResultService struct {
	resultsDir string
	logger     *logger.Logger
	now        func() time.Time
}

// NewResultService creates a ResultService rooted at the configured results directory.
func NewResultService(config *config.Config, logger *logger.Logger) *ResultService {
	return &ResultService{
		resultsDir: config.ResultsDir,
		logger:     logger,
		now:        time.Now,
	}
}

// Save stores data under a timestamp derived name and returns the public
// path of the file.
func (s *ResultService) Save(data []byte) (string, error) {
	if err := os.MkdirAll(s.resultsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create results directory: %w", err)
	}

	suffix := "0000"
	if id, err := uuid.NewV4(); err == nil {
		suffix = id.String()[:8]
	}
	filename := fmt.Sprintf("detected_%s_%s.jpg", s.now().Format("20060102_150405.000"), suffix)
	fullpath := filepath.Join(s.resultsDir, filename)

	if err := os.WriteFile(fullpath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", filename, err)
	}

	s.logger.Debug("Saved annotated image %s (%d bytes)", filename, len(data))
	return PublicPrefix + filename, nil
}

// Resolve maps a public path returned by Save back onto the file system.
func (s *ResultService) Resolve(publicPath string) (string, error) {
	name := path.Base(strings.TrimPrefix(publicPath, PublicPrefix))
	if name == "." || name == "/" || name == ".." || !strings.HasPrefix(publicPath, PublicPrefix) {
		return "", ErrOutsideResults
	}
	return filepath.Join(s.resultsDir, name), nil
}
