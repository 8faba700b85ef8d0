package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/azubet/azubet/internal/domain"
)

// RateLimit caps requests per client IP using the shared limiter, so the cap
// holds across replicas. A limiter failure fails open: a Redis blip must not
// take the betting API down with it.
func RateLimit(limiter domain.RateLimiter, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "http:" + clientAddr(r)
			ok, err := limiter.Allow(r.Context(), key, limit, window)
			if err == nil && !ok {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr resolves the client IP, trusting proxy headers when present.
// X-Forwarded-For may carry a chain; the first hop is the client.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
