package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"aerotool/internal/logger"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, logger *logger.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// writeError sends {"detail": message}.
func writeError(w http.ResponseWriter, logger *logger.Logger, status int, message string) {
	writeJSON(w, logger, status, map[string]string{"detail": message})
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}
