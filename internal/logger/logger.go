package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	*slog.Logger
}

func New(logLevel string) *Logger {
	return NewWithWriter(logLevel, "json", os.Stdout)
}

// NewWithWriter builds a logger writing format ("json" or "text") to w.
func NewWithWriter(logLevel, format string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(logLevel),
		AddSource: logLevel == "debug",
	}

	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// From wraps an existing slog logger; nil yields Nop.
func From(l *slog.Logger) *Logger {
	if l == nil {
		return Nop()
	}
	return &Logger{Logger: l}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{Logger: slog.New(discardHandler{})}
}

type discardHandler struct{}

func (discardHandler) Enabled(_ context.Context, _ slog.Level) bool  { return false }
func (discardHandler) Handle(_ context.Context, _ slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler          { return h }
func (h discardHandler) WithGroup(string) slog.Handler               { return h }

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With("component", component),
	}
}

func (l *Logger) WithFields(fields ...interface{}) *Logger {
	return &Logger{
		Logger: l.Logger.With(fields...),
	}
}

// RouteOperation logs one kernel transaction. Failures are logged at warn.
func (l *Logger) RouteOperation(action, route string, duration int64, err error) {
	if err != nil {
		l.Warn("Route operation failed",
			slog.String("action", action),
			slog.String("route", route),
			slog.Int64("duration_us", duration),
			slog.String("error", err.Error()))
		return
	}
	l.Debug("Route operation completed",
		slog.String("action", action),
		slog.String("route", route),
		slog.Int64("duration_us", duration))
}

func (l *Logger) RouteEvent(change, route string) {
	l.Info("Route change received",
		slog.String("change", change),
		slog.String("route", route))
}

func (l *Logger) Frames(action string, bytes, frames int) {
	l.Debug("Kernel reply",
		slog.String("action", action),
		slog.Int("bytes", bytes),
		slog.Int("frames", frames))
}

func (l *Logger) BatchOperation(action string, total, success, skipped, failed int, duration int64) {
	l.Info("Batch operation completed",
		slog.String("action", action),
		slog.Int("total", total),
		slog.Int("success", success),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Int64("duration_ms", duration))
}

func (l *Logger) ConfigLoaded(file string, routes int) {
	l.Info("Configuration loaded",
		slog.String("config_file", file),
		slog.Int("routes", routes))
}

func (l *Logger) MonitorStart(groups string) {
	l.Info("Route monitor started",
		slog.String("groups", groups))
}

func (l *Logger) MonitorStop() {
	l.Info("Route monitor stopped")
}
