package handler

import (
	"encoding/json"
	"net/http"

	"aerotool/internal/logger"
	"aerotool/internal/service/recognition"
)

type settingsPayload struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold"`
}

// GetSettingsHandler returns the current confidence threshold.
func GetSettingsHandler(settings *recognition.Settings, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]float64{
			"confidence_threshold": settings.Threshold(),
		})
	}
}

// UpdateSettingsHandler replaces the confidence threshold used by
// subsequent recognitions.
func UpdateSettingsHandler(settings *recognition.Settings, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload settingsPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ConfidenceThreshold == nil {
			writeError(w, logger, http.StatusBadRequest, "confidence_threshold is required")
			return
		}

		if err := settings.SetThreshold(*payload.ConfidenceThreshold); err != nil {
			writeError(w, logger, http.StatusUnprocessableEntity, err.Error())
			return
		}

		logger.Info("Confidence threshold set to %.2f", *payload.ConfidenceThreshold)
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok", "message": "Settings updated"})
	}
}
