package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiterEntry: tracks a rate limiter and its last use time
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimit: limits WebSocket handshakes per client IP
type IPRateLimit struct {
	limiters map[string]*ipLimiterEntry
	every    time.Duration
	burst    int
	mu       sync.Mutex
}

// NewIPRateLimit: one handshake per `every`, bursting to `burst`.
// A non-positive interval disables the limit.
func NewIPRateLimit(every time.Duration, burst int) *IPRateLimit {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimit{
		limiters: make(map[string]*ipLimiterEntry),
		every:    every,
		burst:    burst,
	}
}

// Allow: checks if an IP is allowed to open another connection
func (iprl *IPRateLimit) Allow(ip string) bool {
	if iprl == nil || iprl.every <= 0 {
		return true
	}

	iprl.mu.Lock()
	defer iprl.mu.Unlock()

	entry, exists := iprl.limiters[ip]
	if !exists {
		entry = &ipLimiterEntry{
			limiter: rate.NewLimiter(rate.Every(iprl.every), iprl.burst),
		}
		iprl.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// Cleanup: removes limiters idle longer than threshold, returns how many
func (iprl *IPRateLimit) Cleanup(threshold time.Duration) int {
	iprl.mu.Lock()
	defer iprl.mu.Unlock()

	now := time.Now()
	removed := 0
	for ip, entry := range iprl.limiters {
		if now.Sub(entry.lastSeen) > threshold {
			delete(iprl.limiters, ip)
			removed++
		}
	}
	return removed
}

// Middleware: rejects requests over the per-IP budget with 429
func (iprl *IPRateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !iprl.Allow(ClientIP(r)) {
			http.Error(w, "Too many connections", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP: RemoteAddr without the port. X-Forwarded-For and X-Real-IP
// are ignored so a client cannot pick the address it is limited under.
func ClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return strings.Trim(ip, "[]")
}
