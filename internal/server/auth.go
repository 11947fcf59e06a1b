package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// authMiddleware requires the admin token on every API route when
// ADMIN_TOKEN is configured. The token arrives either as a bearer
// credential or in X-Admin-Token; the bearer form wins when both are set.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.AdminToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		candidate := ""
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			candidate = strings.TrimSpace(auth[len("bearer "):])
		}
		if candidate == "" {
			candidate = r.Header.Get("X-Admin-Token")
		}

		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfMiddleware requires X-CSRF-Token on mutating routes when CSRF_TOKEN
// is configured.
func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.CSRFToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("X-CSRF-Token")
		if subtle.ConstantTimeCompare([]byte(header), []byte(token)) != 1 {
			http.Error(w, "Invalid or missing CSRF token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies the per-IP fixed window to mutating routes.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientIP(r)) {
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter is an in-memory fixed-window counter per client IP. Windows
// are a minute wide; the first request after a window expires resets it.
type rateLimiter struct {
	mu      sync.Mutex
	limit   int
	now     func() time.Time
	windows map[string]*rateWindow
}

type rateWindow struct {
	count int
	start time.Time
}

// newRateLimiter creates a limiter allowing limit requests per IP per
// minute. A non-positive limit disables the check.
func newRateLimiter(limit int, now func() time.Time) *rateLimiter {
	if now == nil {
		now = time.Now
	}
	return &rateLimiter{
		limit:   limit,
		now:     now,
		windows: make(map[string]*rateWindow),
	}
}

// Allow counts a request for ip and reports whether it fits the window.
func (l *rateLimiter) Allow(ip string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[ip]
	if !ok || now.Sub(w.start) >= time.Minute {
		w = &rateWindow{start: now}
		l.windows[ip] = w
	}
	w.count++
	return w.count <= l.limit
}

// clientIP strips the port from RemoteAddr. The RealIP middleware has
// already folded X-Forwarded-For into it when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
