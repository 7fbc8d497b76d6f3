package gateway

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrRateLimited is returned by Connect when a target has seen too many
// attempts in the last minute.
var ErrRateLimited = errors.New("too many connection attempts")

// DefaultMaxAttemptsPerMinute bounds connect requests per target.
const DefaultMaxAttemptsPerMinute = 10

// AttemptLimiter enforces a sliding one-minute window of connect attempts
// per target. A zero limit allows everything.
type AttemptLimiter struct {
	mu       sync.Mutex
	max      int
	attempts map[string][]time.Time
	nowFn    func() time.Time // injectable clock for testing
}

func NewAttemptLimiter(maxPerMinute int) *AttemptLimiter {
	return &AttemptLimiter{
		max:      maxPerMinute,
		attempts: make(map[string][]time.Time),
		nowFn:    time.Now,
	}
}

// Allow records an attempt for target, or returns ErrRateLimited without
// recording one.
func (l *AttemptLimiter) Allow(target string) error {
	if l == nil || l.max <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	cutoff := now.Add(-time.Minute)
	recent := l.attempts[target][:0]
	for _, t := range l.attempts[target] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.max {
		l.attempts[target] = recent
		retry := recent[0].Sub(cutoff).Truncate(time.Second)
		log.Printf("[gateway] rate limit: %s exceeded %d attempts/min", target, l.max)
		return fmt.Errorf("%w to %s; retry in %s", ErrRateLimited, target, retry)
	}
	l.attempts[target] = append(recent, now)
	return nil
}

// Reset forgets the attempts for target.
func (l *AttemptLimiter) Reset(target string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, target)
}
