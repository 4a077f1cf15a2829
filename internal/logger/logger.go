package logger

import (
	"io"
	"os"

	"sunsets-ordering/internal/config"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus so services depend on one logging type.
type Logger struct {
	*logrus.Logger
}

// New creates a logger from configuration.
func New(cfg *config.LoggerConfig) *Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Warn("Failed to open log file, falling back to stdout")
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, file))
		}
	}

	return &Logger{Logger: log}
}
