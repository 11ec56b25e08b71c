// README: zerolog logger construction from config.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"herodispatch/internal/config"
)

// New creates a structured zerolog.Logger tagged with the service name.
// Local environments get a human-readable console writer.
func New(cfg config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Env == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Env != "" {
		ctx = ctx.Str("env", cfg.Env)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
