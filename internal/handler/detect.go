package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"aerotool/internal/logger"
	"aerotool/internal/service/detection"
	"aerotool/internal/service/recognition"
)

const maxUploadMemory = 32 << 20

// DetectSingleHandler runs recognition on the multipart field "file" and
// returns its detection result.
func DetectSingleHandler(manager *recognition.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Failed to parse form")
			return
		}

		upload, err := readFormFile(r, "file")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "No file provided")
			return
		}
		if !recognition.IsSupportedImage(upload.FileName) {
			writeError(w, logger, http.StatusBadRequest, "File must be an image")
			return
		}

		batch, err := manager.Recognize(r.Context(), []recognition.Upload{upload}, r.FormValue("toolset"))
		if err != nil {
			writeRecognitionError(w, logger, err)
			return
		}

		w.Header().Set("X-Operation-ID", batch.Operation.ID)
		writeJSON(w, logger, http.StatusOK, batch.Results[0].Result)
	}
}

// DetectMultipleHandler runs recognition on every file of the multipart
// field "files" as one operation.
func DetectMultipleHandler(manager *recognition.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Failed to parse form")
			return
		}

		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			writeError(w, logger, http.StatusBadRequest, "No files provided")
			return
		}

		uploads := make([]recognition.Upload, 0, len(headers))
		for _, header := range headers {
			upload, err := readUpload(header)
			if err != nil {
				logger.Error("Error reading upload %s: %v", header.Filename, err)
				continue
			}
			uploads = append(uploads, upload)
		}

		batch, err := manager.Recognize(r.Context(), uploads, r.FormValue("toolset"))
		if err != nil {
			writeRecognitionError(w, logger, err)
			return
		}
		writeBatch(w, logger, batch)
	}
}

// DetectArchiveHandler runs recognition on the images of a zip archive
// uploaded as "file".
func DetectArchiveHandler(manager *recognition.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			writeError(w, logger, http.StatusBadRequest, "Failed to parse form")
			return
		}

		upload, err := readFormFile(r, "file")
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "No file provided")
			return
		}
		if strings.ToLower(path.Ext(upload.FileName)) != ".zip" {
			writeError(w, logger, http.StatusBadRequest, "File must be a ZIP archive")
			return
		}

		uploads, err := recognition.ExtractArchive(upload.Data)
		if err != nil {
			logger.Warning("Rejected archive %s: %v", upload.FileName, err)
			writeError(w, logger, http.StatusBadRequest, "Invalid ZIP archive")
			return
		}

		batch, err := manager.Recognize(r.Context(), uploads, r.FormValue("toolset"))
		if err != nil {
			writeRecognitionError(w, logger, err)
			return
		}
		writeBatch(w, logger, batch)
	}
}

func writeBatch(w http.ResponseWriter, logger *logger.Logger, batch *recognition.Batch) {
	writeJSON(w, logger, http.StatusOK, map[string]interface{}{
		"operation_id": batch.Operation.ID,
		"summary":      batch.Operation.Summary,
		"results":      batch.Results,
	})
}

func writeRecognitionError(w http.ResponseWriter, logger *logger.Logger, err error) {
	switch {
	case errors.Is(err, recognition.ErrNoImages):
		writeError(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, detection.ErrInvalidImage):
		writeError(w, logger, http.StatusBadRequest, "File is not a valid image")
	default:
		logger.Error("Recognition failed: %v", err)
		writeError(w, logger, http.StatusInternalServerError, "Recognition failed")
	}
}

func readFormFile(r *http.Request, field string) (recognition.Upload, error) {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return recognition.Upload{}, http.ErrMissingFile
	}
	return readUpload(r.MultipartForm.File[field][0])
}

func readUpload(header *multipart.FileHeader) (recognition.Upload, error) {
	if header.Filename == "" {
		return recognition.Upload{}, http.ErrMissingFile
	}

	file, err := header.Open()
	if err != nil {
		return recognition.Upload{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return recognition.Upload{}, err
	}
	return recognition.Upload{FileName: header.Filename, Data: data}, nil
}
