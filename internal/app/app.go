package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aerotool/internal/config"
	"aerotool/internal/logger"
	"aerotool/internal/metrics"
	"aerotool/internal/queue"
	"aerotool/internal/repository/sqlite"
	"aerotool/internal/route"
	"aerotool/internal/service/ai"
	"aerotool/internal/service/ai/opencv"
	"aerotool/internal/service/detection"
	"aerotool/internal/service/persistence"
	"aerotool/internal/service/publisher"
	"aerotool/internal/service/recognition"
	"aerotool/internal/service/storage"
	"aerotool/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger *logger.Logger
	broker queue.Broker

	models     []ai.Model
	results    *storage.ResultService
	hubService *websocket.HubService
	publisher  *publisher.Publisher
	manager    *recognition.Manager
	pubMetrics *metrics.PublisherMetrics

	db          *sqlite.DB
	consumer    *persistence.Consumer
	consMetrics *metrics.ConsumerMetrics
	operations  *sqlite.OperationRepository
	images      *sqlite.ImageRepository
	detections  *sqlite.DetectionRepository
}

// NewApp builds the components of the configured role. Whatever was opened
// before a failure is released again.
func NewApp(cfg *config.Config) (*App, error) {
	switch cfg.Role {
	case config.RoleInference, config.RolePersistence, config.RoleAll:
	default:
		return nil, fmt.Errorf("unknown role %q", cfg.Role)
	}

	log := logger.NewLogger(cfg)
	a := &App{config: cfg, logger: log}

	if cfg.Role != config.RoleAll && strings.HasPrefix(cfg.QueueURL, "memory:") {
		log.Warning("Role %s with an in-process queue: results never leave this process", cfg.Role)
	}

	broker, err := queue.Open(cfg.QueueURL, cfg.QueueName, log)
	if err != nil {
		return nil, err
	}
	a.broker = broker
	a.results = storage.NewResultService(cfg, log)

	if cfg.RunsInference() {
		if err := a.setupInference(); err != nil {
			a.close()
			return nil, err
		}
	}
	if cfg.RunsPersistence() {
		if err := a.setupPersistence(); err != nil {
			a.close()
			return nil, err
		}
	}

	return a, nil
}

func (a *App) setupInference() error {
	cfg := a.config

	if err := (detection.Options{Threshold: cfg.ConfidenceThreshold}).Validate(); err != nil {
		return fmt.Errorf("CONFIDENCE_THRESHOLD: %w", err)
	}

	first, err := loadModel(cfg, cfg.Model1Path, cfg.Model1Labels, a.logger)
	if err != nil {
		return fmt.Errorf("model 1: %w", err)
	}
	a.models = append(a.models, first)

	second, err := loadModel(cfg, cfg.Model2Path, cfg.Model2Labels, a.logger)
	if err != nil {
		return fmt.Errorf("model 2: %w", err)
	}
	a.models = append(a.models, second)

	engine := detection.NewEngine(first, second, opencv.NewRenderer(a.logger), a.results, a.logger)

	a.pubMetrics = &metrics.PublisherMetrics{}
	a.publisher = publisher.NewPublisher(a.broker, a.pubMetrics, a.logger)
	a.hubService = websocket.NewHubService(a.logger)
	a.manager = recognition.NewManager(engine, a.publisher, a.hubService,
		recognition.NewSettings(cfg.ConfidenceThreshold), cfg.Toolset, a.logger)
	return nil
}

func (a *App) setupPersistence() error {
	cfg := a.config

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	a.db = db
	a.operations = sqlite.NewOperationRepository(db)
	a.images = sqlite.NewImageRepository(db)
	a.detections = sqlite.NewDetectionRepository(db)

	a.consMetrics = &metrics.ConsumerMetrics{}
	redelivery := time.Duration(cfg.RedeliveryDelayMs) * time.Millisecond
	a.consumer = persistence.NewConsumer(a.broker, a.operations, a.consMetrics, redelivery, a.logger)
	return nil
}

// loadModel opens one detector with the configured backend.
func loadModel(cfg *config.Config, modelPath, labelsPath string, log *logger.Logger) (ai.Model, error) {
	names, err := ai.LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}

	switch cfg.ModelBackend {
	case "onnx":
		m, err := ai.NewONNXModel(modelPath, cfg.ONNXLibrary, names, cfg.ModelInputSize, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "opencv", "":
		m, err := opencv.NewModel(modelPath, names, cfg.ModelInputSize, log)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
	}
}

// Run serves HTTP and runs the background services until ctx is done, then
// shuts everything down in order.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	consumerErr := make(chan error, 1)

	if a.hubService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.hubService.Run(ctx)
		}()
	}
	if a.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.consumer.Run(ctx); err != nil {
				consumerErr <- err
			}
		}()
	}

	deps := route.Dependencies{
		Config:           a.config,
		Logger:           a.logger,
		Manager:          a.manager,
		Hub:              a.hubService,
		PublisherMetrics: a.pubMetrics,
		ConsumerMetrics:  a.consMetrics,
		Results:          a.results,
	}
	// leave the interfaces nil rather than holding a nil pointer
	if a.db != nil {
		deps.Operations = a.operations
		deps.Images = a.images
		deps.Detections = a.detections
	}
	router := route.SetupRoutes(deps)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.WithField("role", a.config.Role).Infof("Tool detection server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case runErr = <-serveErr:
		a.logger.Error("HTTP server failed: %v", runErr)
	case runErr = <-consumerErr:
		a.logger.Error("Persistence consumer stopped: %v", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warning("HTTP shutdown: %v", err)
	}

	// in-flight publishes finish before the broker goes away
	if a.publisher != nil {
		a.publisher.Wait()
	}

	cancel()
	wg.Wait()
	return runErr
}

func (a *App) close() {
	for _, m := range a.models {
		if err := m.Close(); err != nil {
			a.logger.Warning("Closing model: %v", err)
		}
	}
	a.models = nil

	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warning("Closing queue: %v", err)
		}
		a.broker = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warning("Closing database: %v", err)
		}
		a.db = nil
	}
}
