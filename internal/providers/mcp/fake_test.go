package mcp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskrelay/internal/core"
)

// fakeConn is an in-memory backend session.
type fakeConn struct {
	mu       sync.Mutex
	tools    []string
	listErr  error
	callErr  map[string]error
	isError  map[string]bool
	output   string
	calls    []string
	closed   atomic.Bool
	closeErr error
}

func newFakeConn(output string, tools ...string) *fakeConn {
	return &fakeConn{
		tools:   tools,
		output:  output,
		callErr: make(map[string]error),
		isError: make(map[string]bool),
	}
}

func (f *fakeConn) ListTools(ctx context.Context, _ mcpproto.ListToolsRequest) (*mcpproto.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	res := &mcpproto.ListToolsResult{}
	for _, name := range f.tools {
		res.Tools = append(res.Tools, mcpproto.NewTool(name, mcpproto.WithDescription(name+" tool")))
	}
	return res, nil
}

func (f *fakeConn) CallTool(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Params.Name)
	err := f.callErr[req.Params.Name]
	isErr := f.isError[req.Params.Name]
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &mcpproto.CallToolResult{
		Content: []mcpproto.Content{mcpproto.TextContent{Type: "text", Text: f.output}},
		IsError: isErr,
	}, nil
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return f.closeErr
}

func (f *fakeConn) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeBackends hands out a prepared connection per backend name.
type fakeBackends struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
	fail  map[string]error
	dials atomic.Int32
}

func newFakeBackends() *fakeBackends {
	return &fakeBackends{
		conns: make(map[string]*fakeConn),
		fail:  make(map[string]error),
	}
}

func (b *fakeBackends) set(name string, conn *fakeConn) *fakeConn {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[name] = conn
	return conn
}

func (b *fakeBackends) factory(TransportType) (Transport, error) {
	return func(ctx context.Context, cfg BackendConfig) (Conn, error) {
		b.dials.Add(1)
		b.mu.Lock()
		defer b.mu.Unlock()

		if err := b.fail[cfg.Name]; err != nil {
			return nil, err
		}
		conn, ok := b.conns[cfg.Name]
		if !ok {
			return nil, errors.New("no such backend")
		}
		return conn, nil
	}, nil
}

func backend(name string) BackendConfig {
	return BackendConfig{Name: name, Endpoint: "http://" + name + ".local/mcp"}
}

type eventLog struct {
	mu     sync.Mutex
	events []core.ToolEvent
}

func (l *eventLog) RecordToolEvent(_ context.Context, ev core.ToolEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) statuses() []core.ToolStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]core.ToolStatus, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Status
	}
	return out
}
