package api

import (
	"bufio"
	"net"
	"net/http"
	"strings"
	"time"

	"grimm.is/wlanctl/internal/clock"
	"grimm.is/wlanctl/internal/metrics"
)

// accessLogWriter wraps http.ResponseWriter to capture the status code
type accessLogWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *accessLogWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *accessLogWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Hijack is needed for websocket upgrades through the middleware.
func (rw *accessLogWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return h.Hijack()
}

// loggingMiddleware logs and counts all API requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := clock.Now()

		rw := &accessLogWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		s.metrics.RecordAPIRequest(r.Method, routeLabel(r.URL.Path), rw.status, duration.Seconds())

		if r.URL.Path == "/metrics" {
			return
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rw.status,
			"size", rw.size,
			"duration", duration.Round(time.Millisecond),
		}
		switch {
		case rw.status >= 500:
			s.logger.Error("request", args...)
		case rw.status >= 400:
			s.logger.Warn("request", args...)
		default:
			s.logger.Debug("request", args...)
		}
	})
}

// routeLabel keeps metric label cardinality bounded.
func routeLabel(path string) string {
	path = strings.TrimSuffix(path, "/")
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	return "other"
}
