// internal/web/logging.go
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Logger returns the structured logger for a named component.
func Logger(module string) *slog.Logger {
	return slog.Default().With(
		"service", "ministrysite",
		"module", module,
	)
}

// LogOperationError records a failed handler operation. 5xx failures log at error level.
func LogOperationError(ctx context.Context, operation string, statusCode int, err error) {
	fields := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"request_id", middleware.GetReqID(ctx),
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
	}
	if statusCode >= 500 {
		Logger("http").ErrorContext(ctx, "http operation failed", fields...)
		return
	}
	Logger("http").WarnContext(ctx, "http operation failed", fields...)
}

// RequestLogger logs one line per request with status and duration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			statusCode = http.StatusOK
		}
		outcome := "success"
		if statusCode >= 400 {
			outcome = "failure"
		}

		fields := []any{
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", statusCode,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case statusCode >= 500:
			Logger("http").ErrorContext(r.Context(), "http request completed", fields...)
		case statusCode >= 400:
			Logger("http").WarnContext(r.Context(), "http request completed", fields...)
		default:
			Logger("http").InfoContext(r.Context(), "http request completed", fields...)
		}
	})
}
