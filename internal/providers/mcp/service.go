package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

var _ core.MCPServer = (*Service)(nil)

// Service ties the persisted catalog to the live registry and serves tools to the agent.
type Service struct {
	catalog  *Catalog
	registry *Registry
	cache    *ToolCache

	// configs the registry was last reconciled to
	activeConfigs map[string]BackendConfig
	mu            sync.Mutex
}

func NewService(catalog *Catalog, registry *Registry, cache *ToolCache) *Service {
	registry.OnChange(cache.Invalidate)

	return &Service{
		catalog:       catalog,
		registry:      registry,
		cache:         cache,
		activeConfigs: make(map[string]BackendConfig),
	}
}

// Start loads the catalog, connects its backends and follows file changes.
// A backend that fails to connect is logged and left out.
func (s *Service) Start(ctx context.Context) error {
	if err := s.catalog.Load(ctx); err != nil {
		return err
	}

	backends := s.catalog.List()

	s.mu.Lock()
	for _, cfg := range backends {
		s.activeConfigs[cfg.Name] = cfg
	}
	s.mu.Unlock()

	if failed := s.registry.AddBackends(ctx, backends); len(failed) > 0 {
		log.FromCtx(ctx).Warn().Int("failed", len(failed)).Int("total", len(backends)).Msg("some backends did not connect")
	}

	updates, err := s.catalog.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch backend config: %w", err)
	}
	go s.watchConfig(ctx, updates)

	return nil
}

func (s *Service) Shutdown(ctx context.Context) error {
	return s.registry.Close()
}

// AddBackend connects the backend and then persists it. A backend that fails
// to connect is neither registered nor saved.
func (s *Service) AddBackend(ctx context.Context, cfg BackendConfig) error {
	tType, err := cfg.GetTransport()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnection, cfg.Name, err)
	}
	cfg.Transport = tType

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.AddBackend(ctx, cfg); err != nil {
		return err
	}
	s.activeConfigs[cfg.Name] = cfg

	if err := s.catalog.Put(ctx, cfg); err != nil {
		return fmt.Errorf("backend %s connected but not saved: %w", cfg.Name, err)
	}
	return nil
}

func (s *Service) RemoveBackend(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, saved := s.catalog.Get(name)
	err := s.registry.RemoveBackend(ctx, name)
	if err != nil && !saved {
		return err
	}
	delete(s.activeConfigs, name)

	if err := s.catalog.Remove(ctx, name); err != nil {
		return fmt.Errorf("backend %s removed but not saved: %w", name, err)
	}
	return nil
}

// ListBackends returns the live backends in registration order.
func (s *Service) ListBackends() []BackendConfig {
	return s.registry.ListBackends()
}

// ConfiguredBackends returns every saved backend, connected or not.
func (s *Service) ConfiguredBackends() []BackendConfig {
	return s.catalog.List()
}

func (s *Service) ListTools(ctx context.Context) ([]ToolSpec, error) {
	return s.cache.GetAvailableTools(ctx)
}

func (s *Service) ExecuteTool(ctx context.Context, req ToolRequest) (string, error) {
	if _, ok := s.cache.Lookup(req.Name); !ok {
		// unknown to the snapshot, so the next read refreshes
		s.cache.Invalidate()
	}
	return s.registry.ExecuteTool(ctx, req)
}

// GetTools returns one function definition per distinct tool name, or nil when
// no backend offers any tools.
func (s *Service) GetTools(ctx context.Context) ([]core.Tool, error) {
	specs, err := s.cache.GetAvailableTools(ctx)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool, len(specs))
	tools := make([]core.Tool, 0, len(specs))
	for _, spec := range specs {
		if seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true

		tools = append(tools, core.Tool{
			Type: "function",
			Function: core.Function{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}
	return tools, nil
}

func (s *Service) CallTool(ctx context.Context, name string, args string) (string, error) {
	log.FromCtx(ctx).Info().Str("tool", name).Str("args", args).Msg("executing tool")

	var raw json.RawMessage
	if args != "" {
		raw = json.RawMessage(args)
	}
	return s.ExecuteTool(ctx, ToolRequest{Name: name, Arguments: raw})
}

func (s *Service) watchConfig(ctx context.Context, updates <-chan []BackendConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case desired, ok := <-updates:
			if !ok {
				return
			}
			s.syncBackends(ctx, desired)
		}
	}
}

// syncBackends reconciles the registry with the desired configs.
func (s *Service) syncBackends(ctx context.Context, desired []BackendConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]BackendConfig, len(desired))
	for _, cfg := range desired {
		want[cfg.Name] = cfg
	}

	for name := range s.activeConfigs {
		if _, exists := want[name]; exists {
			continue
		}
		log.FromCtx(ctx).Info().Str("backend", name).Msg("removing backend")
		if err := s.registry.RemoveBackend(ctx, name); err != nil {
			log.FromCtx(ctx).Debug().Err(err).Str("backend", name).Msg("backend was not live")
		}
		delete(s.activeConfigs, name)
	}

	var changed []BackendConfig
	for _, cfg := range desired {
		active, exists := s.activeConfigs[cfg.Name]
		if exists && reflect.DeepEqual(active, cfg) {
			continue
		}
		log.FromCtx(ctx).Info().Str("backend", cfg.Name).Bool("restart", exists).Msg("applying backend config")
		s.activeConfigs[cfg.Name] = cfg
		changed = append(changed, cfg)
	}

	if len(changed) > 0 {
		s.registry.AddBackends(ctx, changed)
	}
}
