package api

import (
	"sync"
	"time"
)

const (
	askRateLimit  = 20
	askRateWindow = time.Minute
)

// askRateLimiter bounds how many questions one session may submit per
// window, on top of the worker pool's per-session serialization.
type askRateLimiter struct {
	limit  int
	window time.Duration
	mu     sync.Mutex
	hits   map[string][]time.Time
}

func newAskRateLimiter(limit int, window time.Duration) *askRateLimiter {
	return &askRateLimiter{limit: limit, window: window, hits: make(map[string][]time.Time)}
}

func (l *askRateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	queue := l.hits[key]
	cutoff := now.Add(-l.window)
	idx := 0
	for _, t := range queue {
		if t.After(cutoff) {
			break
		}
		idx++
	}
	if idx > 0 {
		queue = queue[idx:]
	}
	if len(queue) >= l.limit {
		l.hits[key] = queue
		return false
	}
	queue = append(queue, now)
	l.hits[key] = queue
	return true
}

func (l *askRateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}
