package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production always logs JSON at
// info level; development honours LOG_FORMAT and includes debug output.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	format := "pretty"
	if cfg != nil {
		format = cfg.LogFormat
		if cfg.IsProduction() {
			level = slog.LevelInfo
			format = "json"
		}
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
