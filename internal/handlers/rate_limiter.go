package handlers

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// attemptLimiter bounds how often a key may hit an endpoint.
type attemptLimiter interface {
	Allow(key string) (bool, time.Duration)
}

// bucketLimiter keeps a token bucket per key. Each bucket holds limit attempts and refills one
// attempt every window/limit.
type bucketLimiter struct {
	every rate.Limit
	burst int
	idle  time.Duration
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketLimiter(limit int, window time.Duration, clock func() time.Time) attemptLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &bucketLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one attempt from key's bucket. When the bucket is empty the attempt is not counted
// and the wait until the next attempt is returned.
func (l *bucketLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	reservation := b.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, l.idle
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// pruneLocked drops buckets that have been idle long enough to refill completely.
func (l *bucketLimiter) pruneLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
}
