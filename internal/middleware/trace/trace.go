// Package trace assigns request ids and logs request lifecycles.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"kakeibo/internal/log"
)

type ContextKey string

const RequestIDKey ContextKey = "request_id"

// Middleware wraps handlers with request-id assignment and start/finish
// logging.
type Middleware struct {
	extractIP func(*http.Request) string
	requests  int64
}

func NewMiddleware(extractIP func(*http.Request) string) *Middleware {
	return &Middleware{extractIP: extractIP}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		requestID := uuid.NewString()
		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		fields := log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.UserAgent())
		fields[log.FieldRequestID] = requestID
		fields[log.FieldClientIP] = clientIP

		slog.InfoContext(ctx, "HTTP request started", fields.ToSlice()...)

		atomic.AddInt64(&m.requests, 1)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		logLevel := slog.LevelInfo
		switch {
		case rw.statusCode >= 500:
			logLevel = slog.LevelError
		case rw.statusCode >= 400:
			logLevel = slog.LevelWarn
		}

		fields.WithHTTPResponse(rw.statusCode, duration.Milliseconds(), rw.statusCode < 400)
		slog.Log(ctx, logLevel, "HTTP request completed", fields.ToSlice()...)
	})
}

// TotalRequests returns how many requests this middleware has seen.
func (m *Middleware) TotalRequests() int64 {
	return atomic.LoadInt64(&m.requests)
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID extracts the request ID from context, empty if absent.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
