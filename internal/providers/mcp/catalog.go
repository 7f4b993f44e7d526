package mcp

import (
	"context"
	"sort"
	"sync"
)

// Storage persists the backend catalog.
type Storage interface {
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
	Watch(ctx context.Context) (<-chan Config, error)
}

// Catalog is the persisted set of backend configs, the desired state the
// service reconciles the live registry against.
type Catalog struct {
	storage  Storage
	mu       sync.RWMutex
	backends map[string]BackendConfig
}

func NewCatalog(storage Storage) *Catalog {
	return &Catalog{
		storage:  storage,
		backends: make(map[string]BackendConfig),
	}
}

func (c *Catalog) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cfg, err := c.storage.Load(ctx)
	if err != nil {
		return err
	}

	c.backends = named(cfg.MCPServers)
	return nil
}

// Put saves first and only then updates memory.
func (c *Catalog) Put(ctx context.Context, cfg BackendConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]BackendConfig, len(c.backends)+1)
	for k, v := range c.backends {
		next[k] = v
	}
	next[cfg.Name] = cfg

	if err := c.storage.Save(ctx, &Config{MCPServers: next}); err != nil {
		return err
	}

	c.backends = next
	return nil
}

func (c *Catalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.backends[name]; !ok {
		return nil
	}

	next := make(map[string]BackendConfig, len(c.backends))
	for k, v := range c.backends {
		if k != name {
			next[k] = v
		}
	}

	if err := c.storage.Save(ctx, &Config{MCPServers: next}); err != nil {
		return err
	}

	c.backends = next
	return nil
}

func (c *Catalog) Get(name string) (BackendConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.backends[name]
	return cfg, ok
}

// List returns the configs sorted by name.
func (c *Catalog) List() []BackendConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return sortedConfigs(c.backends)
}

// Watch forwards storage changes after applying them to the catalog.
func (c *Catalog) Watch(ctx context.Context) (<-chan []BackendConfig, error) {
	ch, err := c.storage.Watch(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []BackendConfig)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-ch:
				if !ok {
					return
				}

				backends := named(cfg.MCPServers)
				c.mu.Lock()
				c.backends = backends
				c.mu.Unlock()

				select {
				case out <- sortedConfigs(backends):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// named copies the map and sets each config's Name from its key.
func named(in map[string]BackendConfig) map[string]BackendConfig {
	out := make(map[string]BackendConfig, len(in))
	for k, v := range in {
		v.Name = k
		out[k] = v
	}
	return out
}

func sortedConfigs(m map[string]BackendConfig) []BackendConfig {
	result := make([]BackendConfig, 0, len(m))
	for _, v := range m {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
