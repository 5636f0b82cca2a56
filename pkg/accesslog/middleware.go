// Package accesslog records one structured log line per proxied request.
package accesslog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id to the backend and back to the client.
const RequestIDHeader = "X-Request-ID"

// responseCapture wraps http.ResponseWriter to capture the status code and
// the number of body bytes written.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
	bytes      int64
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	n, err := rc.ResponseWriter.Write(b)
	rc.bytes += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach Flush and Hijack on the
// underlying writer.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// Flush forwards to the underlying writer. ReverseProxy flushes streaming
// responses through this method.
func (rc *responseCapture) Flush() {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	_ = http.NewResponseController(rc.ResponseWriter).Flush()
}

// Middleware logs each request after the handler completes. A request id is
// taken from the X-Request-ID header or generated, and is forwarded with the
// request.
func Middleware(cfg *Config, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg == nil || !cfg.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			startTime := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
				r.Header.Set(RequestIDHeader, requestID)
			}
			w.Header().Set(RequestIDHeader, requestID)

			capture := &responseCapture{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			// A panic aborting the handler still gets a log line.
			defer func() {
				level := cfg.Level
				if capture.statusCode >= http.StatusInternalServerError {
					level = slog.LevelError
				}
				logger.Log(r.Context(), level, "request",
					"requestID", requestID,
					"method", r.Method,
					"host", r.Host,
					"path", r.URL.Path,
					"proto", r.Proto,
					"remoteAddr", r.RemoteAddr,
					"status", capture.statusCode,
					"bytes", capture.bytes,
					"duration", time.Since(startTime).String(),
				)
			}()

			next.ServeHTTP(capture, r)
		})
	}
}
