package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/parley/internal/apicall"
	backend "github.com/redis/go-redis/v9"
)

// countScript increments the window counter and gives it a TTL whenever it has none,
// in one atomic step. A counter left without a TTL is repaired on its next use.
var countScript = backend.NewScript(`
local count = redis.call("incr", KEYS[1])
if redis.call("pttl", KEYS[1]) < 0 then
	redis.call("pexpire", KEYS[1], ARGV[1])
end
return count
`)

// RateLimiter implements ports.RateLimiter with a fixed window per hostname.
// The first use of a window starts its expiry, so counters are shared by all replicas.
type RateLimiter struct {
	client    backend.UniversalClient
	prefix    string
	threshold int64
	window    time.Duration
}

// NewRateLimiter throttles a hostname after threshold calls within window. Keys are
// prefix + "ratelimit:" + hostname; an empty prefix selects DefaultPrefix.
// Non-positive arguments select the apicall defaults.
func NewRateLimiter(client backend.UniversalClient, prefix string, threshold int, window time.Duration) *RateLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if threshold <= 0 {
		threshold = apicall.DefaultThrottleThreshold
	}
	if window <= 0 {
		window = apicall.DefaultThrottleWindow
	}
	return &RateLimiter{
		client:    client,
		prefix:    prefix + "ratelimit:",
		threshold: int64(threshold),
		window:    window,
	}
}

// AddHostnameUseAndShouldThrottle counts one use of hostname in the current window.
func (l *RateLimiter) AddHostnameUseAndShouldThrottle(ctx context.Context, hostname string) (bool, error) {
	key := l.prefix + hostname

	count, err := countScript.Run(ctx, l.client, []string{key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to count hostname use: %w", err)
	}
	return count > l.threshold, nil
}
