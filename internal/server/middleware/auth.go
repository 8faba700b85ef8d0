// Package middleware holds the HTTP middleware chain: auth, CORS, request
// logging, and per-client rate limiting.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth guards the API with a shared token, accepted either as a Bearer
// credential or in X-API-Key. With no token configured the API is open,
// which is the expected setup for a localhost deployment.
func Auth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := requestToken(r)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestToken pulls the credential from the Authorization Bearer scheme or
// the X-API-Key header, in that order.
func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, rest, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}
