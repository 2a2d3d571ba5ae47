package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	redisrepo "neighborsos/internal/repository/redis"
)

// Default marketplace policies. One window each, keyed by client IP.
const (
	EmailLimit  = 5
	EmailWindow = time.Hour

	ContactLimit  = 3
	ContactWindow = time.Hour

	ClaimLimit  = 10
	ClaimWindow = time.Hour
)

// Result is one limiter decision. Reset is when the oldest recorded
// action slides out of the window, i.e. the earliest moment a denied
// caller can try again.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Checker is what handlers depend on; tests substitute a stub.
type Checker interface {
	Check(ctx context.Context, key string) (Result, error)
}

// Limiter applies one named sliding-window policy. A store error is
// returned as an error, never folded into a deny: the caller decides
// the fail direction, and a 500 is distinct from a 429.
type Limiter struct {
	name   string
	limit  int
	window time.Duration
	cache  *redisrepo.RateLimitCache
}

func New(name string, limit int, window time.Duration, cache *redisrepo.RateLimitCache) *Limiter {
	return &Limiter{
		name:   name,
		limit:  limit,
		window: window,
		cache:  cache,
	}
}

func NewEmailLimiter(cache *redisrepo.RateLimitCache) *Limiter {
	return New("email", EmailLimit, EmailWindow, cache)
}

func NewContactLimiter(cache *redisrepo.RateLimitCache) *Limiter {
	return New("contact", ContactLimit, ContactWindow, cache)
}

func NewClaimLimiter(cache *redisrepo.RateLimitCache) *Limiter {
	return New("claim", ClaimLimit, ClaimWindow, cache)
}

func (l *Limiter) Name() string { return l.name }

// Check evaluates and, when allowed, records one action for key.
func (l *Limiter) Check(ctx context.Context, key string) (Result, error) {
	allowed, count, oldestMs, err := l.cache.SlidingWindow(ctx, l.name+":"+key, l.limit, l.window)
	if err != nil {
		return Result{}, err
	}

	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}

	var reset time.Time
	if oldestMs > 0 {
		reset = time.UnixMilli(oldestMs).Add(l.window)
	} else {
		reset = time.Now().Add(l.window)
	}

	return Result{
		Allowed:   allowed,
		Limit:     l.limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// ClientKey identifies the caller for IP-scoped limits: first hop of
// X-Forwarded-For, then X-Real-IP, then the socket peer. "unknown"
// collapses callers we cannot attribute into one shared bucket rather
// than letting them bypass the limit.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
	return host
}
