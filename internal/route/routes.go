package route

import (
	"net/http"

	"aerotool/internal/config"
	"aerotool/internal/handler"
	"aerotool/internal/logger"
	"aerotool/internal/metrics"
	"aerotool/internal/middleware"
	"aerotool/internal/repository"
	"aerotool/internal/service/recognition"
	"aerotool/internal/service/storage"
	"aerotool/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Dependencies holds what the router wires into handlers. Inference-side
// fields are nil in a persistence-only process and the other way round.
type Dependencies struct {
	Config *config.Config
	Logger *logger.Logger

	// inference role
	Manager          *recognition.Manager
	Hub              *websocket.HubService
	PublisherMetrics *metrics.PublisherMetrics

	// persistence role
	Operations      repository.OperationRepository
	Images          repository.ImageRepository
	Detections      repository.DetectionRepository
	ConsumerMetrics *metrics.ConsumerMetrics

	Results *storage.ResultService
}

// SetupRoutes registers the endpoints of the configured role and wraps the
// router with the CORS middleware.
func SetupRoutes(deps Dependencies) http.Handler {
	cfg, logger := deps.Config, deps.Logger
	r := mux.NewRouter()

	r.HandleFunc("/", handler.HealthHandler(cfg.Role, logger)).Methods(http.MethodGet)
	r.HandleFunc("/health", handler.HealthHandler(cfg.Role, logger)).Methods(http.MethodGet)
	r.HandleFunc("/metrics", handler.MetricsHandler(deps.PublisherMetrics, deps.ConsumerMetrics, logger)).Methods(http.MethodGet)

	// Annotated images
	if deps.Results != nil {
		r.PathPrefix(storage.PublicPrefix).Handler(
			http.StripPrefix(storage.PublicPrefix, http.FileServer(http.Dir(cfg.ResultsDir))),
		).Methods(http.MethodGet)
	}

	if deps.Manager != nil {
		settings := deps.Manager.Settings()

		r.HandleFunc("/detect/single", handler.DetectSingleHandler(deps.Manager, logger)).Methods(http.MethodPost)
		r.HandleFunc("/detect/multiple", handler.DetectMultipleHandler(deps.Manager, logger)).Methods(http.MethodPost)
		r.HandleFunc("/detect/archive", handler.DetectArchiveHandler(deps.Manager, logger)).Methods(http.MethodPost)

		r.HandleFunc("/settings", handler.GetSettingsHandler(settings, logger)).Methods(http.MethodGet)
		r.HandleFunc("/settings", handler.UpdateSettingsHandler(settings, logger)).Methods(http.MethodPost)

		if deps.Hub != nil {
			r.HandleFunc("/api/live", handler.LiveWebsocketHandler(deps.Hub, logger))
		}
	}

	if deps.Operations != nil {
		r.HandleFunc("/api/history", handler.HistoryHandler(deps.Operations, logger)).Methods(http.MethodGet)
		r.HandleFunc("/api/history/{id:[0-9]+}", handler.OperationHandler(deps.Operations, logger)).Methods(http.MethodGet)
		r.HandleFunc("/api/statistics/history", handler.StatisticsHandler(deps.Operations, logger)).Methods(http.MethodGet)
	}
	if deps.Images != nil {
		r.HandleFunc("/api/history/{id:[0-9]+}/images", handler.OperationImagesHandler(deps.Images, logger)).Methods(http.MethodGet)
		if deps.Results != nil {
			r.HandleFunc("/api/images/{id:[0-9]+}", handler.ImageHandler(deps.Images, deps.Results, logger)).Methods(http.MethodGet)
		}
	}
	if deps.Detections != nil {
		r.HandleFunc("/api/images/{id:[0-9]+}/detections", handler.ImageDetectionsHandler(deps.Detections, logger)).Methods(http.MethodGet)
		r.HandleFunc("/api/classes", handler.ClassesHandler(deps.Detections, logger)).Methods(http.MethodGet)
	}

	// Log endpoints
	for _, level := range []string{"info", "warning", "error"} {
		file := level + ".log"
		r.HandleFunc("/logs/"+level, handler.ShowLogsHandler(cfg, file)).Methods(http.MethodGet)
		r.HandleFunc("/logs/"+level+"/clear", handler.ClearLogsHandler(logger, file)).Methods(http.MethodPost)
	}

	return middleware.CORSMiddleware(r)
}
