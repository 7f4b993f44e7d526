package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/pkg/log"
	"golang.org/x/sync/errgroup"
)

const defaultListConcurrency = 8

type Timeouts struct {
	Connect  time.Duration
	ToolList time.Duration
	ToolCall time.Duration
}

func NewDefaultTimeouts() *Timeouts {
	return &Timeouts{
		Connect:  30 * time.Second,
		ToolList: 5 * time.Second,
		ToolCall: 2 * time.Minute,
	}
}

// ToolSpec is a tool advertised by a backend. Names may repeat across backends.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
	Backend     string          `json:"backend"`
}

type ToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type RegistryOption func(*Registry)

// WithRecorder receives calling/completed/error events for every execution.
func WithRecorder(rec core.ToolEventRecorder) RegistryOption {
	return func(r *Registry) { r.recorder = rec }
}

func WithListConcurrency(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.listConcurrency = n
		}
	}
}

// Registry owns the live backends and routes tool calls to them.
type Registry struct {
	pool            ConnectionPool
	timeouts        *Timeouts
	recorder        core.ToolEventRecorder
	hooks           []func()
	listConcurrency int
}

func NewRegistry(pool ConnectionPool, timeouts *Timeouts, opts ...RegistryOption) *Registry {
	if timeouts == nil {
		timeouts = NewDefaultTimeouts()
	}
	r := &Registry{
		pool:            pool,
		timeouts:        timeouts,
		listConcurrency: defaultListConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn to run after every membership change.
// Hooks must be registered before the registry is shared.
func (r *Registry) OnChange(fn func()) {
	r.hooks = append(r.hooks, fn)
}

// AddBackend connects and registers one backend. Nothing is registered on failure.
func (r *Registry) AddBackend(ctx context.Context, cfg BackendConfig) error {
	return r.AddBackends(ctx, []BackendConfig{cfg})[cfg.Name]
}

// AddBackends connects backends concurrently and registers the successful ones
// in the order given. The result maps failed backend names to their error.
func (r *Registry) AddBackends(ctx context.Context, cfgs []BackendConfig) map[string]error {
	clients := make([]*ManagedClient, len(cfgs))
	errs := make([]error, len(cfgs))

	var g errgroup.Group
	g.SetLimit(r.listConcurrency)
	for i, cfg := range cfgs {
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(ctx, r.timeouts.Connect)
			defer cancel()

			logger := log.FromCtx(ctx).With().Str("backend", cfg.Name).Logger()
			logger.Info().Str("endpoint", cfg.Endpoint).Str("transport", string(cfg.Transport)).Msg("connecting backend")

			clients[i], errs[i] = r.pool.Connect(connectCtx, cfg)
			if errs[i] != nil {
				logger.Error().Err(errs[i]).Msg("failed to connect backend")
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[string]error)
	registered := 0
	for i, cli := range clients {
		if errs[i] != nil {
			failed[cfgs[i].Name] = errs[i]
			continue
		}
		if old := r.pool.Put(cli); old != nil {
			r.closeClient(ctx, old)
		}
		registered++
		log.FromCtx(ctx).Info().Str("backend", cli.Name()).Msg("backend connected")
	}

	if registered > 0 {
		r.changed()
	}
	return failed
}

// RemoveBackend unregisters and closes a backend. Close failures are only logged.
func (r *Registry) RemoveBackend(ctx context.Context, name string) error {
	cli, ok := r.pool.Del(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}

	r.closeClient(ctx, cli)
	r.changed()
	log.FromCtx(ctx).Info().Str("backend", name).Msg("backend removed")
	return nil
}

// ListBackends returns a snapshot of the registered configs in registration order.
func (r *Registry) ListBackends() []BackendConfig {
	clients := r.pool.All()
	cfgs := make([]BackendConfig, len(clients))
	for i, c := range clients {
		cfgs[i] = c.Config()
	}
	return cfgs
}

// ListAllTools concatenates every backend's tools in registration order.
// Backends that fail to answer are skipped.
func (r *Registry) ListAllTools(ctx context.Context) ([]ToolSpec, error) {
	var all []ToolSpec
	for _, l := range r.listEach(ctx, r.pool.All()) {
		if l.err != nil {
			continue
		}
		all = append(all, l.tools...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return all, nil
}

// ExecuteTool tries every backend advertising req.Name, in registration order,
// until one succeeds. Duplicate names are treated as redundant providers.
func (r *Registry) ExecuteTool(ctx context.Context, req ToolRequest) (string, error) {
	logger := log.FromCtx(ctx).With().Str("tool", req.Name).Logger()
	r.record(ctx, req.Name, "", core.ToolStatusCalling, nil)

	args, err := decodeArguments(req.Arguments)
	if err != nil {
		err = fmt.Errorf("invalid arguments for %s: %w", req.Name, err)
		r.record(ctx, req.Name, "", core.ToolStatusError, err)
		return "", err
	}

	var (
		lastErr     error
		lastBackend string
		advertised  bool
	)

	for _, l := range r.listEach(ctx, r.pool.All()) {
		if l.err != nil || !advertises(l.tools, req.Name) {
			continue
		}
		advertised = true

		out, err := r.callTool(ctx, l.client, req.Name, args)
		if err == nil {
			r.record(ctx, req.Name, l.client.Name(), core.ToolStatusCompleted, nil)
			return out, nil
		}

		logger.Warn().Err(err).Str("backend", l.client.Name()).Msg("tool failed, trying next backend")
		lastErr, lastBackend = err, l.client.Name()
	}

	if !advertised {
		err := fmt.Errorf("%w: %s", ErrToolNotFound, req.Name)
		r.record(ctx, req.Name, "", core.ToolStatusError, err)
		return "", err
	}

	toolErr := &ToolError{Tool: req.Name, Backend: lastBackend, Err: lastErr}
	r.record(ctx, req.Name, lastBackend, core.ToolStatusError, toolErr)
	return "", toolErr
}

func (r *Registry) Close() error {
	return r.pool.Close()
}

type listing struct {
	client *ManagedClient
	tools  []ToolSpec
	err    error
}

// listEach queries backends concurrently and returns results in input order.
func (r *Registry) listEach(ctx context.Context, clients []*ManagedClient) []listing {
	results := make([]listing, len(clients))

	var g errgroup.Group
	g.SetLimit(r.listConcurrency)
	for i, cli := range clients {
		g.Go(func() error {
			tools, err := r.listTools(ctx, cli)
			if err != nil {
				log.FromCtx(ctx).Warn().Err(err).Str("backend", cli.Name()).Msg("failed to list tools")
			}
			results[i] = listing{client: cli, tools: tools, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Registry) listTools(ctx context.Context, cli *ManagedClient) ([]ToolSpec, error) {
	tCtx, cancel := context.WithTimeout(ctx, r.timeouts.ToolList)
	defer cancel()

	tools, err := cli.ListTools(tCtx)
	if err != nil {
		return nil, err
	}

	specs := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  inputSchema(t),
			Backend:     cli.Name(),
		})
	}
	return specs, nil
}

func (r *Registry) callTool(ctx context.Context, cli *ManagedClient, name string, args map[string]any) (string, error) {
	tCtx, cancel := context.WithTimeout(ctx, r.timeouts.ToolCall)
	defer cancel()
	return cli.CallTool(tCtx, name, args)
}

func (r *Registry) record(ctx context.Context, tool, backend string, status core.ToolStatus, err error) {
	if r.recorder == nil {
		return
	}
	ev := core.ToolEvent{Tool: tool, Backend: backend, Status: status}
	if err != nil {
		ev.Error = err.Error()
	}
	r.recorder.RecordToolEvent(ctx, ev)
}

func (r *Registry) closeClient(ctx context.Context, cli *ManagedClient) {
	if err := cli.Close(); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("backend", cli.Name()).Msg("failed to close backend")
	}
}

func (r *Registry) changed() {
	for _, fn := range r.hooks {
		fn()
	}
}

func advertises(tools []ToolSpec, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

func decodeArguments(raw json.RawMessage) (map[string]any, error) {
	args := make(map[string]any)
	if len(raw) == 0 || string(raw) == "null" {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func inputSchema(t mcpproto.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 {
		return t.RawInputSchema
	}
	data, err := json.Marshal(t.InputSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
