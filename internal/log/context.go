package log

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey struct{}

// LoggerContextKey is where request-scoped loggers live in a context.
var LoggerContextKey = contextKey{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext returns the logger stored by NewContext, or one wrapping the
// process default tagged "unknown".
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// LogFailure logs err under component with its classification. The
// request-scoped logger is used when ctx has one.
func LogFailure(ctx context.Context, msg string, err error, component, errorType string) {
	fields := NewFields().WithError(err)
	fields[FieldErrorType] = errorType
	FromContext(ctx).WithComponent(component).ErrorContext(ctx, msg, fields.ToSlice()...)
}

// StructuredLogger writes the access and ledger-audit lines.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger.WithComponent(ComponentHTTP),
	}
}

// LogHTTPEnd logs a finished request: 5xx at error, 4xx at warn.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP)

	sl.from(ctx).WithComponent(ComponentHTTP).Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogTransactionMutation records a committed ledger write.
func (sl *StructuredLogger) LogTransactionMutation(ctx context.Context, op, userID, id, accountID, txType string, amountCents int64) {
	fields := NewFields().
		WithUser(userID).
		WithTransaction(id, accountID, txType, amountCents).
		WithOperation(op)

	sl.from(ctx).WithComponent(ComponentLedger).InfoContext(ctx, "Transaction "+op+"d", fields.ToSlice()...)
}

func (sl *StructuredLogger) from(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return sl.logger
}
