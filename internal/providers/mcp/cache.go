package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/sandevgo/tuskrelay/pkg/log"
	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 30 * time.Second

// ToolLoader fetches the full tool list from every backend.
type ToolLoader func(ctx context.Context) ([]ToolSpec, error)

type CacheOption func(*ToolCache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ToolCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ToolCache) { c.now = now }
}

// ToolCache keeps a TTL-bound snapshot of all advertised tools.
// Concurrent refreshes collapse into one load.
type ToolCache struct {
	load  ToolLoader
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu          sync.RWMutex
	tools       []ToolSpec
	byName      map[string]ToolSpec
	refreshedAt time.Time
	valid       bool
	generation  uint64
}

func NewToolCache(load ToolLoader, opts ...CacheOption) *ToolCache {
	c := &ToolCache{
		load:   load,
		ttl:    DefaultCacheTTL,
		now:    time.Now,
		byName: make(map[string]ToolSpec),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetAvailableTools returns the cached tools, refreshing them once the TTL has passed.
// An empty result means no tools are available.
func (c *ToolCache) GetAvailableTools(ctx context.Context) ([]ToolSpec, error) {
	if tools, ok := c.fresh(); ok {
		return tools, nil
	}

	v, err, _ := c.group.Do("tools", func() (any, error) {
		if tools, ok := c.fresh(); ok {
			return tools, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if tools, ok := c.stale(); ok {
			log.FromCtx(ctx).Warn().Err(err).Msg("tool refresh failed, serving stale tool list")
			return tools, nil
		}
		return nil, err
	}

	return copyTools(v.([]ToolSpec)), nil
}

// Lookup finds the first cached tool with the given name.
func (c *ToolCache) Lookup(name string) (ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.byName[name]
	return t, ok
}

// Invalidate forces the next read to refresh.
func (c *ToolCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.valid = false
	c.generation++
}

func (c *ToolCache) refresh(ctx context.Context) ([]ToolSpec, error) {
	c.mu.RLock()
	gen := c.generation
	c.mu.RUnlock()

	tools, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]ToolSpec, len(tools))
	for _, t := range tools {
		if _, exists := byName[t.Name]; !exists {
			byName[t.Name] = t
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tools = copyTools(tools)
	c.byName = byName
	c.refreshedAt = c.now()
	// an Invalidate that raced the load keeps the snapshot stale
	c.valid = gen == c.generation

	log.FromCtx(ctx).Debug().Int("tools", len(tools)).Msg("tool cache refreshed")
	return tools, nil
}

func (c *ToolCache) fresh() ([]ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.valid || c.now().Sub(c.refreshedAt) >= c.ttl {
		return nil, false
	}
	return copyTools(c.tools), true
}

func (c *ToolCache) stale() ([]ToolSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.refreshedAt.IsZero() {
		return nil, false
	}
	return copyTools(c.tools), true
}

func copyTools(tools []ToolSpec) []ToolSpec {
	out := make([]ToolSpec, len(tools))
	copy(out, tools)
	return out
}
