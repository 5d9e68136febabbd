package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds event context to a logger.
// Returns a new logger with event_id, event_type, and source fields.
func EnrichLogger(logger *slog.Logger, eventID, eventType, source string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event_id", eventID),
		slog.String("event_type", eventType),
		slog.String("source", source),
	)
}

// LogEmit logs an event entering the queue.
func LogEmit(logger *slog.Logger, eventType, source string) {
	if logger == nil {
		return
	}
	logger.Debug("event queued",
		slog.String("event_type", eventType),
		slog.String("source", source),
	)
}

// LogDispatch logs a completed dispatch.
func LogDispatch(logger *slog.Logger, eventType string, handlers int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("event dispatched",
		slog.String("event_type", eventType),
		slog.Int("handlers", handlers),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogHandlerError logs a handler failure.
func LogHandlerError(logger *slog.Logger, eventType, handler string, err error) {
	if logger == nil {
		return
	}
	logger.Error("handler failed",
		slog.String("event_type", eventType),
		slog.String("handler", handler),
		slog.String("error", err.Error()),
	)
}

// LogScheduleFire logs a schedule producing a synthetic event.
func LogScheduleFire(logger *slog.Logger, kind string, count int64, next time.Time) {
	if logger == nil {
		return
	}
	attrs := []any{
		slog.String("kind", kind),
		slog.Int64("execution_count", count),
	}
	if !next.IsZero() {
		attrs = append(attrs, slog.Time("next_execution", next))
	}
	logger.Debug("schedule fired", attrs...)
}

// LogScheduleError logs a schedule loop iteration failure.
func LogScheduleError(logger *slog.Logger, kind string, err error) {
	if logger == nil {
		return
	}
	logger.Error("schedule iteration failed",
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}
