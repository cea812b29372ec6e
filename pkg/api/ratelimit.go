package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/rollout/pkg/metrics"
	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-client limiter is kept
const limiterIdleTTL = 10 * time.Minute

// RateLimit configures per-client rate limiting of event ingestion. A
// non-positive RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int

	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP instead
	// of the connection address
	TrustProxyHeaders bool
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter keeps one token bucket per client IP
type rateLimiter struct {
	cfg       RateLimit
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newRateLimiter(cfg RateLimit) *rateLimiter {
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond) + 1
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// allow reports whether the client may make another request now
func (l *rateLimiter) allow(clientIP string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[clientIP]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)}
		l.clients[clientIP] = c
	}
	c.lastSeen = now
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		l.sweep(now)
	}
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// sweep drops limiters idle for longer than limiterIdleTTL; caller holds l.mu
func (l *rateLimiter) sweep(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.clients, ip)
		}
	}
	l.lastSweep = now
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// rateLimited wraps h with per-client rate limiting when configured
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	if s.limiter == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, s.cfg.EventsRateLimit.TrustProxyHeaders)
		if !s.limiter.allow(ip) {
			metrics.EventsRejectedTotal.WithLabelValues("rate_limit").Inc()
			s.logger.Warn().Str("client", ip).Msg("Event rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		h(w, r)
	}
}

// clientIP extracts the client IP. Proxy headers are consulted only when
// trustProxy is set; otherwise any client could pick its own limiter key.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
