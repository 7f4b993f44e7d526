package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestService(t *testing.T, backends *fakeBackends, saved map[string]BackendConfig) (*Service, *memoryStorage) {
	t.Helper()

	storage := newMemoryStorage(saved)
	reg := NewRegistry(NewPoolWithFactory(backends.factory), nil)
	svc := NewService(NewCatalog(storage), reg, NewToolCache(reg.ListAllTools))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		svc.Shutdown(context.Background())
	})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return svc, storage
}

func backendNames(cfgs []BackendConfig) string {
	names := make([]string, len(cfgs))
	for i, c := range cfgs {
		names[i] = c.Name
	}
	return strings.Join(names, ",")
}

func TestService_Start(t *testing.T) {
	backends := newFakeBackends()
	backends.set("b", newFakeConn("", "x"))
	backends.set("a", newFakeConn("", "y"))
	backends.fail["down"] = errors.New("refused")

	svc, _ := newTestService(t, backends, map[string]BackendConfig{
		"b":    {Endpoint: "http://b"},
		"a":    {Endpoint: "http://a"},
		"down": {Endpoint: "http://down"},
	})

	if got := backendNames(svc.ListBackends()); got != "a,b" {
		t.Errorf("live backends = %s, want a,b", got)
	}
	if got := backendNames(svc.ConfiguredBackends()); got != "a,b,down" {
		t.Errorf("configured backends = %s, want a,b,down", got)
	}
}

func TestService_AddBackend(t *testing.T) {
	backends := newFakeBackends()
	backends.set("a", newFakeConn("", "x"))
	backends.fail["down"] = errors.New("refused")
	svc, storage := newTestService(t, backends, nil)
	ctx := context.Background()

	if err := svc.AddBackend(ctx, backend("a")); err != nil {
		t.Fatalf("AddBackend: %v", err)
	}
	saved, ok := storage.config.MCPServers["a"]
	if !ok || saved.Transport != TransportHTTP {
		t.Errorf("saved = %+v, %v", saved, ok)
	}

	if err := svc.AddBackend(ctx, backend("down")); !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
	if _, ok := storage.config.MCPServers["down"]; ok {
		t.Error("failed backend was saved")
	}

	if err := svc.AddBackend(ctx, BackendConfig{Name: "bad", Endpoint: "cmd", Transport: "carrier-pigeon"}); !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestService_AddBackend_SaveFails(t *testing.T) {
	backends := newFakeBackends()
	backends.set("a", newFakeConn("", "x"))
	svc, storage := newTestService(t, backends, nil)
	storage.saveErr = errors.New("read-only")

	err := svc.AddBackend(context.Background(), backend("a"))
	if err == nil {
		t.Fatal("expected save error")
	}
	if got := backendNames(svc.ListBackends()); got != "a" {
		t.Errorf("live backends = %s, want a", got)
	}
}

func TestService_RemoveBackend(t *testing.T) {
	backends := newFakeBackends()
	conn := backends.set("a", newFakeConn("", "x"))
	backends.fail["down"] = errors.New("refused")
	svc, storage := newTestService(t, backends, map[string]BackendConfig{
		"a":    {Endpoint: "http://a"},
		"down": {Endpoint: "http://down"},
	})
	ctx := context.Background()

	if err := svc.RemoveBackend(ctx, "a"); err != nil {
		t.Fatalf("RemoveBackend: %v", err)
	}
	if !conn.closed.Load() {
		t.Error("connection not closed")
	}

	// saved but never connected
	if err := svc.RemoveBackend(ctx, "down"); err != nil {
		t.Fatalf("RemoveBackend(down): %v", err)
	}
	if len(storage.config.MCPServers) != 0 {
		t.Errorf("saved = %v, want empty", storage.config.MCPServers)
	}

	if err := svc.RemoveBackend(ctx, "ghost"); !errors.Is(err, ErrBackendNotFound) {
		t.Errorf("error = %v, want ErrBackendNotFound", err)
	}
}

func TestService_GetTools(t *testing.T) {
	backends := newFakeBackends()
	backends.set("a", newFakeConn("from a", "echo", "read"))
	backends.set("b", newFakeConn("from b", "echo"))
	svc, _ := newTestService(t, backends, nil)
	ctx := context.Background()

	tools, err := svc.GetTools(ctx)
	if err != nil {
		t.Fatalf("GetTools: %v", err)
	}
	if tools != nil {
		t.Errorf("tools = %v, want nil with no backends", tools)
	}

	if err := svc.AddBackend(ctx, backend("a")); err != nil {
		t.Fatal(err)
	}
	if err := svc.AddBackend(ctx, backend("b")); err != nil {
		t.Fatal(err)
	}

	tools, err = svc.GetTools(ctx)
	if err != nil {
		t.Fatalf("GetTools: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2 distinct names", len(tools))
	}
	if tools[0].Function.Name != "echo" || tools[0].Type != "function" {
		t.Errorf("tools[0] = %+v", tools[0])
	}

	specs, err := svc.ListTools(ctx)
	if err != nil || len(specs) != 3 {
		t.Errorf("ListTools = %d specs, %v; want 3", len(specs), err)
	}
}

func TestService_CallTool(t *testing.T) {
	backends := newFakeBackends()
	backends.set("a", newFakeConn("pong", "ping"))
	svc, _ := newTestService(t, backends, map[string]BackendConfig{"a": {Endpoint: "http://a"}})
	ctx := context.Background()

	out, err := svc.CallTool(ctx, "ping", `{"n": 1}`)
	if err != nil || strings.TrimSpace(out) != "pong" {
		t.Errorf("CallTool = %q, %v", out, err)
	}

	if _, err := svc.CallTool(ctx, "missing", ""); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("error = %v, want ErrToolNotFound", err)
	}
}

func TestService_SyncFromWatch(t *testing.T) {
	backends := newFakeBackends()
	oldA := backends.set("a", newFakeConn("", "x"))
	backends.set("b", newFakeConn("", "y"))
	svc, storage := newTestService(t, backends, map[string]BackendConfig{
		"a": {Endpoint: "http://a"},
		"b": {Endpoint: "http://b"},
	})

	backends.set("c", newFakeConn("", "z"))
	storage.watch <- Config{MCPServers: map[string]BackendConfig{
		"a": {Endpoint: "http://a", LogResponses: true},
		"c": {Endpoint: "http://c"},
	}}

	deadline := time.Now().Add(2 * time.Second)
	for backendNames(svc.ListBackends()) != "a,c" {
		if time.Now().After(deadline) {
			t.Fatalf("live backends = %s, want a,c", backendNames(svc.ListBackends()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !oldA.closed.Load() {
		t.Error("changed backend a was not restarted")
	}
}
