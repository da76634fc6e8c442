package utils

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Logger wraps slog with the request/response helpers the gateway uses.
type Logger struct {
	*slog.Logger
}

// NewLogger builds a text or JSON slog logger at the given level.
func NewLogger(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// OpenLogger is NewLogger writing to path, or stderr when path is empty.
// The returned closer is never nil.
func OpenLogger(path, level, format string) (*Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(os.Stderr, level, format), io.NopCloser(nil), nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewLogger(file, level, format), file, nil
}

func ParseLevel(level string) slog.Level {
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

// Slog returns the underlying logger, falling back to slog.Default for a nil receiver.
func (l *Logger) Slog() *slog.Logger {
	if l == nil || l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Logger) LogRequest(r *http.Request) {
	l.Slog().Info("api request",
		"method", r.Method,
		"path", r.URL.Path,
		"user_agent", l.getHeaderValue(r, "User-Agent", "Unknown"),
		"accept", l.getHeaderValue(r, "Accept", "Any"),
	)
	l.logClientHeaders(r)
}

func (l *Logger) LogResponse(r *http.Request, status int, start time.Time) {
	l.Slog().Info("api response",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration", time.Since(start),
	)
}

func (l *Logger) LogCORS(r *http.Request) {
	l.Slog().Debug("cors preflight", "path", r.URL.Path)
}

func (l *Logger) LogError(format string, args ...interface{}) {
	l.Slog().Error(fmt.Sprintf(format, args...))
}

func (l *Logger) LogWarning(format string, args ...interface{}) {
	l.Slog().Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) LogInfo(format string, args ...interface{}) {
	l.Slog().Info(fmt.Sprintf(format, args...))
}

func (l *Logger) LogNotFound(method, path string) {
	l.Slog().Info("not found", "method", method, "path", path)
}

func (l *Logger) LogMethodNotAllowed(method, path string) {
	l.Slog().Info("method not allowed", "method", method, "path", path)
}

func (l *Logger) LogJSONError(err error) {
	l.Slog().Error("encoding JSON response", "error", err)
}

func (l *Logger) LogServerStart(addr string, useHTTPS bool) {
	protocol := "HTTP"
	if useHTTPS {
		protocol = "HTTPS"
	}
	l.Slog().Info("starting server", "protocol", protocol, "addr", addr)
}

func (l *Logger) LogServerStop(err error) {
	if err != nil {
		l.Slog().Error("server stopped", "error", err)
	} else {
		l.Slog().Info("server stopped gracefully")
	}
}

func (l *Logger) LogPerformance(operation string, duration time.Duration) {
	if duration > time.Second {
		l.Slog().Warn("slow operation", "operation", operation, "duration", duration)
	} else {
		l.Slog().Debug("operation timing", "operation", operation, "duration", duration)
	}
}

func (l *Logger) getHeaderValue(r *http.Request, key, fallback string) string {
	if value := r.Header.Get(key); value != "" {
		return value
	}
	return fallback
}

func (l *Logger) logClientHeaders(r *http.Request) {
	clientID := r.Header.Get("X-Market-Client-Id")
	userID := r.Header.Get("X-Market-User-Id")
	clientName := r.Header.Get("X-Client-Name")
	clientVersion := r.Header.Get("X-Client-Version")

	if clientID == "" && userID == "" && clientName == "" && clientVersion == "" {
		return
	}
	l.Slog().Debug("client headers",
		"client_id", clientID,
		"user_id", userID,
		"client", clientName,
		"version", clientVersion,
	)
}
