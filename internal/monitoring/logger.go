package monitoring

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

var startTime = time.Now()

// Logger wraps slog with helpers for the events this service emits
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger on stdout at the given level
func NewLogger(level slog.Level) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo creates a JSON logger writing to w
func NewLoggerTo(w io.Writer, level slog.Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String("timestamp", a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	})
	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs one completed HTTP request
func (l *Logger) RequestLogger(requestID, method, path, ip string, statusCode int, duration time.Duration) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "HTTP Request",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// APIErrorLogger logs errors attached to a gin context
func (l *Logger) APIErrorLogger(err error, requestID, method, path string, statusCode int) {
	l.Error("API Error",
		"error", err.Error(),
		"request_id", requestID,
		"method", method,
		"path", path,
		"status_code", statusCode,
	)
}

// CalculationLogger logs a metrics recalculation
func (l *Logger) CalculationLogger(assessmentID int64, written, skipped int, duration time.Duration, err error) {
	if err != nil {
		l.Warn("Metrics Calculation Failed",
			"assessment_id", assessmentID,
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
		return
	}
	l.Info("Metrics Calculated",
		"assessment_id", assessmentID,
		"written", written,
		"skipped", skipped,
		"duration_ms", duration.Milliseconds(),
	)
}

// CacheLogger logs a view cache operation
func (l *Logger) CacheLogger(operation, key string, hit bool) {
	l.Debug("Cache Operation",
		"operation", operation,
		"key", key,
		"hit", hit,
	)
}

// SecurityLogger logs suspicious or rejected requests
func (l *Logger) SecurityLogger(event, ip, userAgent string, details map[string]interface{}) {
	attrs := []any{
		"event", event,
		"ip", ip,
		"user_agent", userAgent,
	}
	for key, value := range details {
		attrs = append(attrs, key, value)
	}
	l.Warn("Security Event", attrs...)
}

// SystemLogger logs lifecycle events such as startup and shutdown
func (l *Logger) SystemLogger(event, details string) {
	l.Info("System Event",
		"event", event,
		"details", details,
		"uptime", time.Since(startTime).String(),
	)
}
