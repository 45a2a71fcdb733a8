package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger: console output in development, JSON otherwise
func New(service string, development bool) zerolog.Logger {
	var logger zerolog.Logger
	if development {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	level := zerolog.InfoLevel
	if development {
		level = zerolog.DebugLevel
	}
	return logger.Level(level).With().Timestamp().Str("service", service).Logger()
}
