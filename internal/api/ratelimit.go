package api

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

const (
	rateLimitWindow  = time.Minute
	rateLimitCleanup = 5 * time.Minute
)

// rateLimitMiddleware answers 429 once a client address exceeds its budget.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !s.limiter.Allow(key) {
			retry := s.limiter.RetryAfter(key)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			s.metrics.RecordRateLimited(routeLabel(r.URL.Path))
			WriteErrorCtx(w, r, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey is the remote host without its port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
