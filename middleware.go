package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

func correlationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// CorrelationIDMiddleware adds X-Correlation-ID to requests
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = "corr_" + uuid.NewString()
			r.Header.Set("X-Correlation-ID", correlationID)
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestValidationMiddleware limits body size and requires JSON on POST
// requests that carry a body
func RequestValidationMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				resp := NewErrorResponse(ErrPayloadTooLarge, "Request body too large", fmt.Sprintf("max_size_bytes=%d", maxBytes))
				writeJSON(w, http.StatusRequestEntityTooLarge, resp)
				return
			}

			if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.ContentLength != 0 {
				if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
					resp := NewErrorResponse(ErrUnsupportedMedia, "Content-Type must be application/json", "")
					writeJSON(w, http.StatusUnsupportedMediaType, resp)
					return
				}
			}

			// chunked bodies have no Content-Length to check up front
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// RecoveryMiddleware turns a panic into a 500 response
func RecoveryMiddleware(logger *StructuredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Panic recovered", map[string]interface{}{
						"correlation_id": correlationIDFrom(r.Context()),
						"error_code":     string(ErrPanic),
						"panic":          fmt.Sprint(rec),
						"stack":          string(debug.Stack()),
					})
					writeJSON(w, http.StatusInternalServerError, NewErrorResponse(ErrInternalError, "Internal server error", ""))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Hijack is needed by the websocket upgrader
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	sr.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// AccessLogMiddleware logs one line per request
func AccessLogMiddleware(logger *StructuredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info("HTTP request", map[string]interface{}{
				"correlation_id": correlationIDFrom(r.Context()),
				"operation":      "http",
				"method":         r.Method,
				"path":           r.URL.Path,
				"status":         rec.status,
				"latency_ms":     time.Since(start).Milliseconds(),
			})
		})
	}
}

// Chain applies middleware so the first one listed runs outermost
func Chain(h http.Handler, middleware ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return h
}
