// Package ratelimit provides per-key token bucket rate limiting for the
// HTTP API and the MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"
)

// ErrLimited is returned by CheckLimit when a key has no tokens left.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a per-key token bucket. Every key starts with a full bucket of
// burst tokens that refills at rate tokens per second. Safe for concurrent
// use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewLimiter creates a limiter with the given refill rate (tokens/sec) and
// burst size.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		now:     time.Now,
	}
}

// PerMinute creates a limiter allowing n requests per minute with the given
// burst. n <= 0 returns nil, which allows everything.
func PerMinute(n float64, burst int) *Limiter {
	if n <= 0 {
		return nil
	}
	return NewLimiter(n/60.0, burst)
}

// Allow takes one token from key's bucket and reports whether one was
// available. A nil Limiter allows every request.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), seen: now}
		l.buckets[key] = b
	}

	if elapsed := now.Sub(b.seen).Seconds(); elapsed > 0 {
		b.tokens = min(float64(l.burst), b.tokens+l.rate*elapsed)
		b.seen = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Middleware rejects requests with 429 once the client's bucket is empty.
// Clients are keyed by remote IP; run it after middleware.RealIP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			http.Error(w, ErrLimited.Error(), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default per-tool limits. Simulations are the
// only expensive tool.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"viralsim_simulate":       NewLimiter(20.0/60.0, 3), // 20/minute, burst 3
		"viralsim_project_growth": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"viralsim_social_proof":   NewLimiter(1.0, 10),      // 60/minute, burst 10
		"viralsim_config":         NewLimiter(10.0/60.0, 5), // 10/minute, burst 5
	}
}

// CheckLimit takes a token for toolName. Tools without a limiter are always
// allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrLimited, toolName)
	}
	return nil
}
