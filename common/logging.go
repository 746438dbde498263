package common

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggingOpts configures the process logger.
type LoggingOpts struct {
	// Debug enables debug-level messages.
	Debug bool

	// JSON switches the handler to JSON output.
	JSON bool

	// Service is added as a 'service' attribute to every record.
	Service string

	// Version is added as a 'version' attribute to every record.
	Version string

	// LogFile, when set, duplicates every record to a size-rotated
	// file in addition to stdout.
	LogFile string
}

// SetupLogger builds the process-wide slog logger. Records always go
// to stdout; when opts.LogFile is set they are also appended to that
// file, rotated by size so a long-lived device never fills its disk.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	var out io.Writer = os.Stdout
	if opts.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
		})
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With("service", opts.Service)
	}
	if opts.Version != "" {
		log = log.With("version", opts.Version)
	}
	return log
}
