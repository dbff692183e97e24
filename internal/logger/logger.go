package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamefusion/promptlog/internal/config"
)

// New builds the process logger. Development gets a human-readable console
// writer, every other environment gets JSON lines on stdout.
func New(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Observability.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if !cfg.IsProduction() {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.Observability.ServiceName).
		Str("env", cfg.Primary.Env).
		Logger()
}
