package recognition

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// MaxArchiveEntrySize bounds a single decompressed archive entry.
const MaxArchiveEntrySize = 64 << 20

var (
	imageExtensions   = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp"}
	archiveExtensions = []string{".jpg", ".jpeg", ".png"}
)

// Upload is one named image submitted for recognition.
type Upload struct {
	FileName string
	Data     []byte
}

// IsSupportedImage reports whether name has an accepted image extension.
func IsSupportedImage(name string) bool {
	return hasExtension(name, imageExtensions)
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ExtractArchive returns the images contained in a zip archive. Entries
// that are directories, hidden, or not JPEG/PNG are skipped.
func ExtractArchive(data []byte) ([]Upload, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var uploads []Upload
	for _, f := range reader.File {
		name := path.Base(f.Name)
		if f.FileInfo().IsDir() || strings.HasPrefix(name, ".") || !hasExtension(name, archiveExtensions) {
			continue
		}
		if f.UncompressedSize64 > MaxArchiveEntrySize {
			return nil, fmt.Errorf("archive entry %s is too large", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, MaxArchiveEntrySize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %s: %w", f.Name, err)
		}
		if len(content) > MaxArchiveEntrySize {
			return nil, fmt.Errorf("archive entry %s is too large", f.Name)
		}

		uploads = append(uploads, Upload{FileName: name, Data: content})
	}
	return uploads, nil
}
