package logging

import (
	"log/slog"
	"os"
)

// Setup sets slog's default logger to JSON output at the given level.
// Level strings follow slog ("debug", "info", "warn", "error").
func Setup(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	logger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}),
	)
	slog.SetDefault(logger)
}
