package ports

import "context"

// RateLimiter tracks outbound API usage per hostname.
// Counters live for the lifetime of the process (or of the shared backend) and are
// shared by every turn; they are never request scoped.
type RateLimiter interface {
	// AddHostnameUseAndShouldThrottle records one use of hostname and reports whether
	// the caller should delay its call. Implementations must be safe for concurrent use.
	AddHostnameUseAndShouldThrottle(ctx context.Context, hostname string) (bool, error)
}
