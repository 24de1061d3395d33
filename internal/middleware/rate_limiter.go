package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// keyRateLimiter tracks request rates per key (typically a user id) with
// expiration of idle entries.
type keyRateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyRateLimiter constructs a per-key limiter that allows up to `requests`
// events per `window` with an additional burst capacity. Idle entries expire
// after ttl.
func NewKeyRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) RateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &keyRateLimiter{
		callers: make(map[string]*caller),
		limit:   rate.Every(window / time.Duration(requests)),
		burst:   burst,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *keyRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	now := l.now()

	l.mu.Lock()
	c, ok := l.callers[key]
	if ok {
		c.lastSeen = now
	} else {
		c = &caller{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
		l.callers[key] = c
	}
	for k, v := range l.callers {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.callers, k)
		}
	}
	l.mu.Unlock()

	return c.limiter.Allow()
}
