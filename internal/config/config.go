package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Roles a process can run as.
const (
	RoleInference   = "inference"
	RolePersistence = "persistence"
	RoleAll         = "all"
)

type Config struct {
	Role string
	Port int

	Model1Path     string
	Model2Path     string
	Model1Labels   string
	Model2Labels   string
	ModelBackend   string // "opencv" or "onnx"
	ONNXLibrary    string
	ModelInputSize int

	ConfidenceThreshold float64
	Toolset             string

	QueueURL          string // amqp://, redis:// or memory://
	QueueName         string
	RedeliveryDelayMs int

	DatabasePath string
	ResultsDir   string
	LogDirectory string
	LogLevel     string
	SentryDSN    string
}

// Load reads an optional .env file and then the environment.
func Load() *Config {
	// a missing .env is fine; real env vars always win
	_ = godotenv.Load()

	return &Config{
		Role: getEnv("ROLE", RoleAll),
		Port: getEnvAsInt("PORT", 8000),

		Model1Path:     getEnv("MODEL1_PATH", filepath.Join(".", "models", "model1.onnx")),
		Model2Path:     getEnv("MODEL2_PATH", filepath.Join(".", "models", "model2.onnx")),
		Model1Labels:   getEnv("MODEL1_LABELS", filepath.Join(".", "models", "model1.txt")),
		Model2Labels:   getEnv("MODEL2_LABELS", filepath.Join(".", "models", "model2.txt")),
		ModelBackend:   getEnv("MODEL_BACKEND", "opencv"),
		ONNXLibrary:    getEnv("ONNX_LIBRARY_PATH", "onnxruntime.so"),
		ModelInputSize: getEnvAsInt("MODEL_INPUT_SIZE", 640),

		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		Toolset:             getEnv("TOOLSET", "default"),

		QueueURL:          getEnv("QUEUE_URL", "memory://"),
		QueueName:         getEnv("QUEUE_NAME", "analysis_results"),
		RedeliveryDelayMs: getEnvAsInt("REDELIVERY_DELAY_MS", 1000),

		DatabasePath: getEnv("DB_PATH", filepath.Join(".", "static", "SQLite", "ToolsAI.db")),
		ResultsDir:   getEnv("RESULTS_DIR", filepath.Join(".", "static", "results")),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SentryDSN:    getEnv("SENTRY_DSN", ""),
	}
}

// RunsInference reports whether the configured role serves detection requests.
func (c *Config) RunsInference() bool {
	return c.Role == RoleInference || c.Role == RoleAll
}

// RunsPersistence reports whether the configured role consumes and stores results.
func (c *Config) RunsPersistence() bool {
	return c.Role == RolePersistence || c.Role == RoleAll
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
