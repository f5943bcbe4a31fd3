package handler

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"aerotool/internal/logger"
	"aerotool/internal/repository"

	"github.com/gorilla/mux"
)

// PathResolver maps a stored image URL onto a file.
type PathResolver interface {
	Resolve(publicPath string) (string, error)
}

// HistoryHandler lists stored operations, newest first.
func HistoryHandler(repo repository.OperationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 10)

		operations, err := repo.ListOperations(page, limit)
		if err != nil {
			logger.Error("Error querying history: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		logger.Info("GET /api/history - Returned %d history records", len(operations))
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"operations": operations})
	}
}

// OperationHandler returns one stored operation with its images and results.
func OperationHandler(repo repository.OperationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid operation id")
			return
		}

		op, err := repo.GetOperation(id)
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warning("GET /api/history/%d - Operation not found", id)
			writeError(w, logger, http.StatusNotFound, "Operation not found")
			return
		}
		if err != nil {
			logger.Error("GET /api/history/%d - Error retrieving operation: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"operation": op})
	}
}

// ImageHandler serves the annotated image stored for an image row.
func ImageHandler(repo repository.ImageRepository, resolver PathResolver, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid image id")
			return
		}

		url, err := repo.GetImageURL(id)
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, logger, http.StatusNotFound, "Image not found")
			return
		}
		if err != nil {
			logger.Error("GET /api/images/%d - Error retrieving image: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		filePath, err := resolver.Resolve(url)
		if err != nil {
			logger.Warning("GET /api/images/%d - Stored url %s is not servable: %v", id, url, err)
			writeError(w, logger, http.StatusNotFound, "Image not found")
			return
		}
		if _, err := os.Stat(filePath); err != nil {
			writeError(w, logger, http.StatusNotFound, "Image file not found")
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, filePath)
	}
}

// StatisticsHandler returns store-wide aggregates.
func StatisticsHandler(repo repository.OperationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Statistics()
		if err != nil {
			logger.Error("GET /api/statistics/history - Error retrieving statistics: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, logger, http.StatusOK, stats)
	}
}

// OperationImagesHandler lists the images stored for one operation.
func OperationImagesHandler(repo repository.ImageRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid operation id")
			return
		}

		images, err := repo.GetByOperationID(id)
		if err != nil {
			logger.Error("GET /api/history/%d/images - Error retrieving images: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"images": images})
	}
}

// ImageDetectionsHandler lists the detections stored for one image.
func ImageDetectionsHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			writeError(w, logger, http.StatusBadRequest, "Invalid image id")
			return
		}

		detections, err := repo.GetByImageID(id)
		if err != nil {
			logger.Error("GET /api/images/%d/detections - Error retrieving detections: %v", id, err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"detections": detections})
	}
}

// ClassesHandler returns every class name that was ever stored, for filters.
func ClassesHandler(repo repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := repo.GetAllNames()
		if err != nil {
			logger.Error("GET /api/classes - Error retrieving class names: %v", err)
			writeError(w, logger, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{"classes": names})
	}
}
