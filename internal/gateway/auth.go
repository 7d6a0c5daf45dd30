package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/flemzord/membot/internal/security"
)

// authMiddleware validates Bearer token or Basic auth credentials using
// constant-time comparison. Clients that fail too often are refused before
// their credentials are checked.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if limiter != nil && limiter.Blocked(security.KindAuthFailure, client) {
				audit.Log(security.AuditEvent{Type: security.EventRateLimit, Actor: client, Detail: "auth failures"})
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			if authorized(cfg, r) {
				next.ServeHTTP(w, r)
				return
			}

			if limiter != nil {
				_ = limiter.Allow(security.KindAuthFailure, client)
			}
			detail := "invalid credentials"
			if r.Header.Get("Authorization") == "" {
				detail = "missing authorization header"
			}
			audit.Log(security.AuditEvent{
				Type:   security.EventAuthFailure,
				Actor:  client,
				Detail: detail,
				Metadata: map[string]string{
					"method": r.Method,
					"path":   r.URL.Path,
				},
			})
			w.Header().Set("WWW-Authenticate", `Basic realm="membot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		})
	}
}

func authorized(cfg AuthConfig, r *http.Request) bool {
	if cfg.BearerToken != "" {
		if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && constantTimeEqual(token, cfg.BearerToken) {
			return true
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		user, pass, ok := r.BasicAuth()
		// Evaluate both comparisons so timing does not reveal which failed.
		userOK := constantTimeEqual(user, cfg.BasicUser)
		passOK := constantTimeEqual(pass, cfg.BasicPass)
		if ok && userOK && passOK {
			return true
		}
	}
	return false
}

// rateLimitMiddleware refuses requests once the client exceeds kind.
func rateLimitMiddleware(kind string, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientIP(r)
			if err := limiter.Allow(kind, client); err != nil {
				audit.Log(security.AuditEvent{Type: security.EventRateLimit, Actor: client, Detail: kind})
				w.Header().Set("Retry-After", "60")
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
