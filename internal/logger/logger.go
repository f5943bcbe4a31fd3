package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"aerotool/internal/config"

	raven "github.com/getsentry/raven-go"
	"github.com/sirupsen/logrus"
)

// Logger provides leveled logging (debug/info/warning/error) to per-level
// files and stdout/stderr. Error entries are also sent to Sentry when a DSN
// is configured.
type Logger struct {
	infoLog    *logrus.Logger
	warningLog *logrus.Logger
	errorLog   *logrus.Logger
	logDir     string
	sentry     bool
}

// NewLogger creates a Logger and ensures the log directory exists.
func NewLogger(config *config.Config) *Logger {
	if err := os.MkdirAll(config.LogDirectory, 0755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	l := &Logger{logDir: config.LogDirectory}
	l.setupLoggers(config.LogLevel)

	if config.SentryDSN != "" {
		if err := raven.SetDSN(config.SentryDSN); err != nil {
			l.Warning("Sentry disabled, invalid DSN: %v", err)
		} else {
			l.sentry = true
		}
	}

	return l
}

// NewWithWriter returns a Logger that sends every level to w and keeps no files.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		infoLog:    newLogrus(w, logrus.DebugLevel),
		warningLog: newLogrus(w, logrus.WarnLevel),
		errorLog:   newLogrus(w, logrus.ErrorLevel),
	}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers(level string) {
	infoFile := l.openLogFile(filepath.Join(l.logDir, "info.log"))
	warningFile := l.openLogFile(filepath.Join(l.logDir, "warning.log"))
	errorFile := l.openLogFile(filepath.Join(l.logDir, "error.log"))

	infoLevel, err := logrus.ParseLevel(level)
	if err != nil {
		infoLevel = logrus.InfoLevel
	}

	l.infoLog = newLogrus(io.MultiWriter(os.Stdout, infoFile), infoLevel)
	l.warningLog = newLogrus(io.MultiWriter(os.Stdout, warningFile), logrus.WarnLevel)
	l.errorLog = newLogrus(io.MultiWriter(os.Stderr, errorFile), logrus.ErrorLevel)
}

func newLogrus(w io.Writer, level logrus.Level) *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(w)
	lg.SetLevel(level)
	lg.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return lg
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(filename string) *os.File {
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file %s: %v", filename, err)
	}
	return file
}

// Debug writes a formatted debug-level entry to the info stream.
func (l *Logger) Debug(format string, v ...interface{}) {
	l.infoLog.Debugf(format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.infoLog.Infof(format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.warningLog.Warnf(format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.errorLog.Errorf(format, v...)
	if l.sentry {
		raven.CaptureMessage(fmt.Sprintf(format, v...), nil)
	}
}

// WithField returns an info-level entry carrying a structured field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.infoLog.WithField(key, value)
}

// CleanLogs truncates the specified log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}

	filePath := filepath.Join(l.logDir, fileName)
	file, err := os.OpenFile(filePath, os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		l.Error("Error opening file: %v", err)
		return err
	}
	defer file.Close()

	l.Info("File content has been cleared: %s", fileName)
	return nil
}
