// Package logging provides structured logging built on log/slog.
//
// JSON output is the default; text output is available for development.
// Every entry carries service and version fields.
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("series saved", "key", key, "points", n)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level, format and destination
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// Logger wraps slog.Logger. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the configured output
func New(cfg Config, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return NewWithWriter(cfg, version, output)
}

// NewWithWriter creates a Logger writing to w, ignoring cfg.Output
func NewWithWriter(cfg Config, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "tsserver"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger with additional default attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON info logger for use before configuration is loaded
func Default() *Logger {
	return New(Config{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a Logger that drops everything
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Printf adapts the logger to printf-style callers such as badger.
// Each level maps to the matching slog level.
type Printf struct {
	L *Logger
}

// Errorf logs at error level
func (p Printf) Errorf(format string, args ...any) {
	p.L.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Warningf logs at warn level
func (p Printf) Warningf(format string, args ...any) {
	p.L.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Infof logs at info level
func (p Printf) Infof(format string, args ...any) {
	p.L.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Debugf logs at debug level
func (p Printf) Debugf(format string, args ...any) {
	p.L.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
