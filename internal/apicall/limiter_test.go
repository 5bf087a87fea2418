package apicall_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_ThrottlesAboveThreshold(t *testing.T) {
	l := apicall.NewMemoryRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		throttle, err := l.AddHostnameUseAndShouldThrottle(ctx, "api.example.com")
		require.NoError(t, err)
		assert.False(t, throttle, "use %d", i+1)
	}
	throttle, err := l.AddHostnameUseAndShouldThrottle(ctx, "api.example.com")
	require.NoError(t, err)
	assert.True(t, throttle)

	// Counters are per hostname.
	throttle, err = l.AddHostnameUseAndShouldThrottle(ctx, "other.example.com")
	require.NoError(t, err)
	assert.False(t, throttle)
}

func TestMemoryRateLimiter_WindowSlides(t *testing.T) {
	l := apicall.NewMemoryRateLimiter(1, 20*time.Millisecond)
	ctx := context.Background()

	_, _ = l.AddHostnameUseAndShouldThrottle(ctx, "h")
	throttle, _ := l.AddHostnameUseAndShouldThrottle(ctx, "h")
	assert.True(t, throttle)

	time.Sleep(40 * time.Millisecond)
	throttle, _ = l.AddHostnameUseAndShouldThrottle(ctx, "h")
	assert.False(t, throttle)
}

func TestMemoryRateLimiter_EvictsQuietHosts(t *testing.T) {
	l := apicall.NewMemoryRateLimiter(10, 50*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_, err := l.AddHostnameUseAndShouldThrottle(ctx, fmt.Sprintf("h%d.example.com", i))
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, l.Hosts())

	time.Sleep(120 * time.Millisecond)
	_, err := l.AddHostnameUseAndShouldThrottle(ctx, "fresh.example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, l.Hosts())
}

func TestMemoryRateLimiter_Concurrent(t *testing.T) {
	l := apicall.NewMemoryRateLimiter(50, time.Minute)
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		throttled int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			th, err := l.AddHostnameUseAndShouldThrottle(ctx, "h")
			assert.NoError(t, err)
			if th {
				mu.Lock()
				throttled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, throttled)
}
