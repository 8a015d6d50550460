package log

import (
	"context"
	"log/slog"
	"net/http"
)

type ContextKey string

const LoggerContextKey ContextKey = "logger"

// Middleware puts logger on every request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the request logger, or one wrapping slog's default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// RequestIDMiddleware tags the context logger with the request id.
func RequestIDMiddleware(extractRequestID func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := extractRequestID(r.Context())
			if requestID == "" {
				next.ServeHTTP(w, r)
				return
			}
			logger := FromContext(r.Context()).With(FieldRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger logs ledger events with the shared field names.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogRequestError logs a failed API call. Client errors log at WARN and
// store failures at ERROR.
func (sl *StructuredLogger) LogRequestError(ctx context.Context, r *http.Request, status int, err error, kind string) {
	fields := NewFields().
		WithError(err, kind).
		WithHTTPResponse(status, 0).
		WithComponent(ComponentHTTP)
	fields[FieldMethod] = r.Method
	fields[FieldPath] = r.URL.Path
	delete(fields, FieldDuration)

	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	sl.logger.Logger.Log(ctx, level, "API request failed", fields.ToSlice()...)
}

// LogRecordChanged logs a committed write.
func (sl *StructuredLogger) LogRecordChanged(ctx context.Context, op, collection string, id, userID int64) {
	fields := NewFields().
		WithRecord(collection, id).
		WithOperation(op).
		WithComponent(ComponentLedger)
	fields[FieldUserID] = userID
	sl.logger.Logger.InfoContext(ctx, "Record changed", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.
		WithError(err, "").
		WithOperation(operation).
		WithComponent(component)
	sl.logger.Logger.ErrorContext(ctx, msg, all.ToSlice()...)
}
