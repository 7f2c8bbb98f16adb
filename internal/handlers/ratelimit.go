package handlers

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP. Limits can be changed at
// runtime and apply to existing clients.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
	metrics *Metrics
}

func NewRateLimiter(rps float64, burst int, metrics *Metrics) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(rps),
		burst:   burst,
		metrics: metrics,
	}
}

func (l *RateLimiter) SetLimits(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rate = rate.Limit(rps)
	l.burst = burst
	for _, c := range l.clients {
		c.limiter.SetLimit(l.rate)
		c.limiter.SetBurst(burst)
	}
}

func (l *RateLimiter) Allow(ip string) bool {
	now := time.Now()
	l.mu.Lock()
	entry, ok := l.clients[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = entry
	}
	entry.lastSeen = now
	if len(l.clients) > 1024 {
		l.cleanupLocked(now)
	}
	l.mu.Unlock()
	return entry.limiter.Allow()
}

func (l *RateLimiter) cleanupLocked(now time.Time) {
	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > 10*time.Minute {
			delete(l.clients, ip)
		}
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.Allow(ip) {
			if l.metrics != nil {
				l.metrics.rateLimited.Inc()
			}
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
