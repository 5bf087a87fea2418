package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// CachedDataAPI memoizes a slower data API. Concurrent misses for the same id share one
// backend load. Failed loads are not cached.
type CachedDataAPI struct {
	backend ports.DataAPI
	group   singleflight.Group
	logger  *slog.Logger

	mu       sync.RWMutex
	versions map[string]*domain.Version
	programs map[string]*domain.Program
}

// CacheOption configures a CachedDataAPI.
type CacheOption func(*CachedDataAPI)

// WithCacheLogger sets the logger used to report invalidations.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *CachedDataAPI) {
		c.logger = logger
	}
}

// NewCachedDataAPI wraps backend with an unbounded cache.
func NewCachedDataAPI(backend ports.DataAPI, opts ...CacheOption) *CachedDataAPI {
	c := &CachedDataAPI{
		backend:  backend,
		logger:   logging.NewNop(),
		versions: make(map[string]*domain.Version),
		programs: make(map[string]*domain.Program),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CachedDataAPI) GetVersion(ctx context.Context, versionID string) (*domain.Version, error) {
	c.mu.RLock()
	v, ok := c.versions[versionID]
	c.mu.RUnlock()
	if ok {
		return v, nil
	}

	res, err, _ := c.group.Do("version:"+versionID, func() (any, error) {
		v, err := c.backend.GetVersion(ctx, versionID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.versions[versionID] = v
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Version), nil
}

func (c *CachedDataAPI) GetProgram(ctx context.Context, programID string) (*domain.Program, error) {
	c.mu.RLock()
	p, ok := c.programs[programID]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	res, err, _ := c.group.Do("program:"+programID, func() (any, error) {
		p, err := c.backend.GetProgram(ctx, programID)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.programs[programID] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*domain.Program), nil
}

// Invalidate drops every cached entry.
func (c *CachedDataAPI) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions = make(map[string]*domain.Version)
	c.programs = make(map[string]*domain.Program)
}

// InvalidateOnChange drops the cache whenever the backend reports a change, until ctx is
// done. Backends that cannot be watched are left as is.
func (c *CachedDataAPI) InvalidateOnChange(ctx context.Context) error {
	w, ok := c.backend.(ports.Watchable)
	if !ok {
		return nil
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	go func() {
		for range changes {
			c.logger.Debug("data changed, dropping cache")
			c.Invalidate()
		}
	}()
	return nil
}
