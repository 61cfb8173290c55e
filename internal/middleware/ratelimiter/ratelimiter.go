// Package ratelimiter applies a token bucket per authenticated user.
package ratelimiter

import (
	"sync"
	"time"

	"github.com/counsel-dev/counsel/internal/domain"
)

// bucket is one user's token state. lastSeen doubles as the refill anchor
// and the idle marker the janitor prunes on.
type bucket struct {
	tokens   float64
	lastSeen time.Time
}

// Limiter tracks a token bucket per user id. Buckets refill lazily on
// access; a single janitor goroutine drops buckets idle longer than ttl so
// the map does not grow with every user ever seen.
type Limiter struct {
	mu      sync.Mutex
	buckets map[domain.UserId]*bucket

	rate  float64 // tokens per second
	burst float64
	ttl   time.Duration

	clock    func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a Limiter allowing rate requests per second with the given
// burst, forgetting users idle longer than ttl.
func New(rate, burst float64, ttl time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[domain.UserId]*bucket),
		rate:    rate,
		burst:   burst,
		ttl:     ttl,
		clock:   time.Now,
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow reports whether the user may proceed, consuming one token if so.
func (l *Limiter) Allow(user domain.UserId) bool {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[user]
	if !ok {
		b = &bucket{tokens: l.burst}
		l.buckets[user] = b
	} else {
		b.tokens += now.Sub(b.lastSeen).Seconds() * l.rate
		if b.tokens > l.burst {
			b.tokens = l.burst
		}
	}
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func (l *Limiter) janitor() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune(l.clock())
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for user, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.ttl {
			delete(l.buckets, user)
		}
	}
}

// Stop halts the janitor. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
