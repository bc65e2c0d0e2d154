package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/WilsonWong800686/yys-autommation/internal/infrastructure/config"
)

// Logger is the slog logger every yysbot component writes through. Each
// record carries service=yysbot and the build version.
//
// Thread Safety: safe for concurrent use.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds a Logger from the logging section.
//
// Output is "stdout", "stderr" or a file path. Files are appended to so
// consecutive runs share one log; a file that cannot be opened falls back
// to stderr with a notice.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, closer := openOutput(cfg.Output)
	l := NewWithWriter(w, cfg, version)
	l.closer = closer
	return l
}

func openOutput(output string) (io.Writer, io.Closer) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: cannot open %s (%v), logging to stderr\n", output, err)
		return os.Stderr, nil
	}
	return f, f
}

// NewWithWriter builds a Logger writing to w. The terminal UI and the
// one-shot subcommands use it to keep log lines off stdout.
//
// Format "text" selects logfmt-style output, anything else JSON. At debug
// level records include their source location.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   level <= slog.LevelDebug,
		ReplaceAttr: readableDurations,
	}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(h).With("service", "yysbot", "version", version)}
}

// readableDurations renders durations as "1.5s" instead of nanoseconds so
// tick timings and gate waits stay legible in JSON.
func readableDurations(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindDuration {
		return slog.String(a.Key, a.Value.Duration().Round(time.Millisecond).String())
	}
	return a
}

// parseLevel maps debug, info, warn (or warning) and error, in any case.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// With returns a child logger with extra attributes, such as the device a
// session plays on. Children share the parent's output; only the parent
// closes it.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Close closes the log file opened by New, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the stderr text logger used before the configuration loads.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}
