package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/config"
)

// New builds the root logger from config. Components derive their own
// loggers from it with a "component" field; only this function creates
// a zerolog instance from scratch.
func New(cfg *config.Config) zerolog.Logger {
	var output io.Writer
	if cfg.LogFormat == "console" || cfg.LogFormat == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	} else {
		// JSON output (default)
		output = os.Stdout
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.LogLevel))

	return zerolog.New(output).
		With().
		Timestamp().
		Str("env", cfg.Env).
		Logger()
}

// parseLevel converts a string log level to zerolog.Level
func parseLevel(levelStr string) zerolog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}
