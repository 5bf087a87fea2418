package apicall

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultThrottleThreshold is the number of calls per window after which calls are delayed.
	DefaultThrottleThreshold = 1000
	// DefaultThrottleWindow is the sliding window over which calls are counted.
	DefaultThrottleWindow = time.Minute
	// DefaultThrottleDelay is how long a throttled call waits before it is made.
	DefaultThrottleDelay = 2 * time.Second
)

// MemoryRateLimiter counts hostname usage in a per-process sliding window.
type MemoryRateLimiter struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	uses      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// NewMemoryRateLimiter creates a limiter throttling after threshold uses within window.
// Non-positive arguments select the defaults.
func NewMemoryRateLimiter(threshold int, window time.Duration) *MemoryRateLimiter {
	if threshold <= 0 {
		threshold = DefaultThrottleThreshold
	}
	if window <= 0 {
		window = DefaultThrottleWindow
	}
	return &MemoryRateLimiter{
		threshold: threshold,
		window:    window,
		uses:      make(map[string][]time.Time),
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

// AddHostnameUseAndShouldThrottle records a use and reports whether the window now
// holds more than threshold uses.
func (l *MemoryRateLimiter) AddHostnameUseAndShouldThrottle(ctx context.Context, hostname string) (bool, error) {
	now := l.now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	// Hosts that went quiet for a whole window are dropped at most once per window.
	if now.Sub(l.lastSweep) >= l.window {
		for host, uses := range l.uses {
			if len(uses) == 0 || !uses[len(uses)-1].After(cutoff) {
				delete(l.uses, host)
			}
		}
		l.lastSweep = now
	}

	uses := trim(l.uses[hostname], cutoff)
	uses = append(uses, now)
	l.uses[hostname] = uses
	return len(uses) > l.threshold, nil
}

// Hosts returns how many hostnames currently hold usage records.
func (l *MemoryRateLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.uses)
}

func trim(uses []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(uses) && !uses[i].After(cutoff) {
		i++
	}
	if i == len(uses) {
		return nil
	}
	return uses[i:]
}
