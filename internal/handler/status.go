package handler

import (
	"net/http"

	"aerotool/internal/logger"
	"aerotool/internal/metrics"
)

// HealthHandler reports that the process is serving.
func HealthHandler(role string, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{
			"status":  "ok",
			"role":    role,
			"message": "Tool Detection API is running",
		})
	}
}

// MetricsHandler exposes the channel counters of whichever side runs in
// this process; a nil source is left out.
func MetricsHandler(publisher *metrics.PublisherMetrics, consumer *metrics.ConsumerMetrics, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{}
		if publisher != nil {
			body["publisher"] = publisher.Snapshot()
		}
		if consumer != nil {
			body["consumer"] = consumer.Snapshot()
		}
		writeJSON(w, logger, http.StatusOK, body)
	}
}
