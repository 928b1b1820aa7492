package engine

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache is a key -> completion lookup consulted before the network.
type Cache interface {
	// Get returns the cached completion and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores a completion.
	Set(key, value string) error
}

// CacheKey returns the key under which a completion is cached: the literal
// system prompt followed by the prompt.
func CacheKey(systemPrompt, prompt string) string {
	return systemPrompt + prompt
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

// Get implements Cache.
func (c *MemoryCache) Get(key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

// Len returns the number of cached completions.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CachedOption configures Cached.
type CachedOption func(*cached)

// WithDefaultSystemPrompt sets the system prompt used to build keys when a
// call does not override it. It must match the wrapped engine's default.
func WithDefaultSystemPrompt(s string) CachedOption {
	return func(c *cached) {
		c.defaultSystem = s
	}
}

// WithCacheLogger sets the logger for cache read/write failures.
func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *cached) {
		c.logger = l
	}
}

type cached struct {
	inner         Engine
	cache         Cache
	defaultSystem string
	logger        *slog.Logger
	inflight      singleflight.Group
}

// Cached wraps e so that completions are served from cache when present.
//
// Concurrent calls with the same key are coalesced into one engine call. A
// caller whose ctx ends stops waiting without failing the other callers; the
// shared call runs to completion and fills the cache.
// Cache failures are logged and treated as misses; correctness never depends
// on a hit.
func Cached(e Engine, cache Cache, opts ...CachedOption) Engine {
	c := &cached{
		inner:         e,
		cache:         cache,
		defaultSystem: DefaultSystemPrompt,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *cached) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	system := opts.SystemPrompt
	if system == "" {
		system = c.defaultSystem
	}
	key := CacheKey(system, prompt)

	if text, ok, err := c.cache.Get(key); err != nil {
		c.logger.Warn("cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return text, nil
	}

	// The shared call is detached from any one caller's cancellation; each
	// caller stops waiting when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		text, err := c.inner.Generate(shared, prompt, opts)
		if err != nil {
			return "", err
		}
		if err := c.cache.Set(key, text); err != nil {
			c.logger.Warn("cache write failed", slog.String("error", err.Error()))
		}
		return text, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
