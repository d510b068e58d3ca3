package server

import (
	"sync"
	"time"
)

// rateLimiter is a per-process sliding-window counter. It backs up the
// shared redis bucket on the public claim endpoints: when redis is down or
// not configured, this is the only throttle left, so it must never depend
// on anything external.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records one hit for key and reports whether it stays within the
// window limit. Expired hits are pruned on access; keys with no recent
// hits are dropped so the map does not grow with dead tokens.
func (l *rateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			recent = append(recent, hit)
		}
	}

	if len(recent) >= l.limit {
		l.hits[key] = recent
		return false
	}

	l.hits[key] = append(recent, now)

	if len(l.hits) > 10000 {
		l.prune(cutoff)
	}
	return true
}

func (l *rateLimiter) prune(cutoff time.Time) {
	for key, hits := range l.hits {
		alive := false
		for _, hit := range hits {
			if hit.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.hits, key)
		}
	}
}
