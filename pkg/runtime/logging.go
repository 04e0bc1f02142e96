package runtime

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogConfig contains logger configuration.
type LogConfig struct {
	// Level sets the logging level (debug, info, warn, error).
	Level string
	// Pretty enables human-readable console output.
	Pretty bool
	// Output defaults to os.Stderr.
	Output io.Writer
}

// NewLogger creates a zerolog logger from cfg. Unknown levels fall back to
// info.
func NewLogger(cfg LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}
