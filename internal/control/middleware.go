package control

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"time"
)

// ErrPanicRecovered indicates an HTTP handler panicked and was recovered,
// mirroring server.ErrPanicRecovered (internal/server/interceptors.go).
var ErrPanicRecovered = errors.New("panic recovered in control handler")

// statusWriter captures the status code written by the wrapped handler so
// loggingMiddleware can log it after the handler returns.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs every request with its method, path, duration,
// and status, translating server.LoggingInterceptor's
// procedure/duration/error shape from ConnectRPC unary calls to plain
// HTTP requests. Status >= 400 logs at Warn, otherwise Info.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", duration),
		}

		if sw.status >= http.StatusBadRequest {
			logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed with error", attrs...)
		} else {
			logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
		}
	})
}

// recoveryMiddleware recovers panics in downstream handlers, logs the
// panic value and stack trace at Error level, and responds 500,
// mirroring server.RecoveryInterceptor.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)

				logger.ErrorContext(r.Context(), "panic recovered in control handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(buf[:n])),
				)

				writeError(w, http.StatusInternalServerError, ErrPanicRecovered)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
