package verifications

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// keyRateLimiter hands out one token bucket per key. Idle limiters are
// replaced after ttl so the map does not grow without bound.
type keyRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	ttl      time.Duration
}

type limiterEntry struct {
	limiter *rate.Limiter
	expires time.Time
}

func newKeyRateLimiter(limit rate.Limit, burst int) *keyRateLimiter {
	return &keyRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		ttl:      10 * time.Minute,
	}
}

func (l *keyRateLimiter) Allow(keyID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[keyID]
	if !ok || now.After(entry.expires) {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[keyID] = entry
	}
	entry.expires = now.Add(l.ttl)
	return entry.limiter.AllowN(now, 1)
}

// sweep drops limiters idle since before now.
func (l *keyRateLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, entry := range l.limiters {
		if now.After(entry.expires) {
			delete(l.limiters, id)
		}
	}
}
