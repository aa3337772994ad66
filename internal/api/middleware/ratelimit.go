package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Jeffreasy/LaventeCareGateway/internal/api/helpers"
)

const visitorIdleTimeout = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter holds the rate limiters for each visitor.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   LimiterConfig
	stop     chan struct{}
	once     sync.Once
}

type LimiterConfig struct {
	RPS   rate.Limit
	Burst int
}

// NewIPRateLimiter creates a per-IP token bucket limiter. Close stops the cleanup loop.
func NewIPRateLimiter(rps rate.Limit, burst int) *IPRateLimiter {
	i := &IPRateLimiter{
		visitors: make(map[string]*visitor),
		config:   LimiterConfig{RPS: rps, Burst: burst},
		stop:     make(chan struct{}),
	}
	go i.cleanupLoop()
	return i
}

// GetLimiter returns the rate limiter for the provided IP address.
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	v, ok := i.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(i.config.RPS, i.config.Burst)}
		i.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (i *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-i.stop:
			return
		case now := <-ticker.C:
			i.evictIdle(now)
		}
	}
}

func (i *IPRateLimiter) evictIdle(now time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for ip, v := range i.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTimeout {
			delete(i.visitors, ip)
		}
	}
}

func (i *IPRateLimiter) Close() {
	i.once.Do(func() { close(i.stop) })
}

// Middleware enforces the rate limit per client IP.
func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := helpers.ClientIP(r)

		if !i.GetLimiter(ip).Allow() {
			slog.Warn("rate_limit_exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			helpers.RespondError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
