package common

import (
	"log/slog"
	"os"
)

// LoggingOpts configures the process-wide logger built by SetupLogger.
type LoggingOpts struct {
	// Debug enables slog.LevelDebug; otherwise the logger is set to
	// slog.LevelInfo.
	Debug bool

	// JSON selects slog.JSONHandler over the default text handler, for
	// deployments that ship logs to a structured sink.
	JSON bool

	// Service tags every log line with a "service" attribute.
	Service string

	// Version tags every log line with a "version" attribute.
	Version string
}

// SetupLogger builds the process-wide *slog.Logger. It is called exactly
// once, at startup, by every cmd/ entrypoint.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	if opts.Version != "" {
		logger = logger.With("version", opts.Version)
	}

	slog.SetDefault(logger)
	return logger
}
