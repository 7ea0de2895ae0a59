// Package logger wraps log/slog with the handful of event shapes the api
// and scheduler emit, so log lines stay greppable across both binaries.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Logger is a *slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

// New returns a text logger at debug level in development and a JSON
// logger at info level everywhere else.
func New(env string) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func (l *Logger) with(key, value string) *Logger {
	return &Logger{Logger: l.With(slog.String(key, value))}
}

func (l *Logger) WithRequestID(requestID string) *Logger { return l.with("request_id", requestID) }

// WithJob tags every line with the background job that produced it.
func (l *Logger) WithJob(job string) *Logger { return l.with("job", job) }

// HTTPRequest logs a completed request. A non-nil err logs at error level.
func (l *Logger) HTTPRequest(method, path string, status int, latency time.Duration, clientIP string, err error) {
	attrs := []any{
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Int64("latency_ms", latency.Milliseconds()),
		slog.String("client_ip", clientIP),
	}
	if err != nil {
		l.Error("http_error", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	l.Info("http_request", attrs...)
}

// ItemFailed logs one failed item of a batch. The batch keeps going.
func (l *Logger) ItemFailed(stream, itemID, stage string, err error) {
	l.Warn("batch_item_failed",
		slog.String("stream", stream),
		slog.String("item_id", itemID),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// TickSkipped logs a tick that found the previous run still in flight.
func (l *Logger) TickSkipped(job string) {
	l.Debug("tick_skipped", slog.String("job", job))
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded", slog.String("client_ip", clientIP), slog.String("path", path))
}
