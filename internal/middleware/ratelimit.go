package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter is a fixed-window per-IP limiter guarding the credential
// endpoints. Counters reset when a window elapses; stale entries are swept
// in the background so the map does not grow with one entry per IP forever.
type RateLimiter struct {
	mu     sync.Mutex
	counts map[string]*windowCount
	limit  int
	window time.Duration
}

type windowCount struct {
	n       int
	started time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		counts: make(map[string]*windowCount),
		limit:  limit,
		window: window,
	}

	go func() {
		for range time.Tick(window) {
			rl.mu.Lock()
			for ip, c := range rl.counts {
				if time.Since(c.started) > rl.window {
					delete(rl.counts, ip)
				}
			}
			rl.mu.Unlock()
		}
	}()

	return rl
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.counts[ip]
	if !ok || time.Since(c.started) > rl.window {
		rl.counts[ip] = &windowCount{n: 1, started: time.Now()}
		return true
	}

	c.n++
	return c.n <= rl.limit
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(r.RemoteAddr) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
