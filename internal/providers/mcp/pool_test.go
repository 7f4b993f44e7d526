package mcp

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestPool_Connect(t *testing.T) {
	backends := newFakeBackends()
	backends.set("ok", newFakeConn("out", "echo"))
	backends.fail["down"] = errors.New("dial refused")

	tests := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{name: "http_backend", cfg: backend("ok")},
		{name: "stdio_backend", cfg: BackendConfig{Name: "ok", Endpoint: "npx -y server"}},
		{name: "empty_name", cfg: BackendConfig{Endpoint: "http://x"}, wantErr: true},
		{name: "empty_endpoint", cfg: BackendConfig{Name: "ok"}, wantErr: true},
		{name: "sse_without_url", cfg: BackendConfig{Name: "ok", Endpoint: "cmd", Transport: TransportSSE}, wantErr: true},
		{name: "transport_failure", cfg: backend("down"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPoolWithFactory(backends.factory)

			cli, err := pool.Connect(context.Background(), tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrConnection) {
					t.Errorf("error = %v, want ErrConnection", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cli.Config().Transport == "" {
				t.Error("transport was not resolved")
			}
			if len(pool.All()) != 0 {
				t.Error("Connect must not register the client")
			}
		})
	}
}

func TestPool_PutKeepsPosition(t *testing.T) {
	pool := NewPool()

	a := NewManagedClient(backend("a"), newFakeConn(""))
	b := NewManagedClient(backend("b"), newFakeConn(""))
	c := NewManagedClient(backend("c"), newFakeConn(""))
	for _, cli := range []*ManagedClient{a, b, c} {
		if old := pool.Put(cli); old != nil {
			t.Fatalf("unexpected replaced client for %s", cli.Name())
		}
	}

	b2 := NewManagedClient(backend("b"), newFakeConn(""))
	if old := pool.Put(b2); old != b {
		t.Fatal("expected the previous b to be returned")
	}

	got := pool.All()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	want := []*ManagedClient{a, b2, c}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d = %s, want %s", i, got[i].Name(), want[i].Name())
		}
	}
}

func TestPool_Del(t *testing.T) {
	pool := NewPool()
	conn := newFakeConn("")
	pool.Put(NewManagedClient(backend("a"), conn))
	pool.Put(NewManagedClient(backend("b"), newFakeConn("")))

	snapshot := pool.All()

	cli, ok := pool.Del("a")
	if !ok || cli.Name() != "a" {
		t.Fatal("expected a to be removed")
	}
	if conn.closed.Load() {
		t.Error("Del must not close the connection")
	}
	if _, ok := pool.Del("a"); ok {
		t.Error("second Del should report missing")
	}
	if _, ok := pool.Get("a"); ok {
		t.Error("a still reachable")
	}

	all := pool.All()
	if len(all) != 1 || all[0].Name() != "b" {
		t.Errorf("All() = %v, want [b]", all)
	}
	if len(snapshot) != 2 || snapshot[0].Name() != "a" {
		t.Error("earlier snapshot was mutated")
	}
}

func TestPool_Put_ReplacesExisting(t *testing.T) {
	backends := newFakeBackends()
	backends.set("a", newFakeConn("first"))
	backends.set("b", newFakeConn("b"))
	pool := NewPoolWithFactory(backends.factory)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		cli, err := pool.Connect(ctx, backend(name))
		if err != nil {
			t.Fatalf("Connect %s failed: %v", name, err)
		}
		if old := pool.Put(cli); old != nil {
			t.Fatalf("Put %s returned a previous client", name)
		}
	}
	first, _ := pool.Get("a")

	backends.set("a", newFakeConn("second"))
	cli, err := pool.Connect(ctx, backend("a"))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if old := pool.Put(cli); old != first {
		t.Error("Put should return the replaced client")
	}

	got, _ := pool.Get("a")
	if got != cli {
		t.Error("pool does not hold the new client")
	}
	all := pool.All()
	if len(all) != 2 || all[0].Name() != "a" || all[1].Name() != "b" {
		t.Errorf("All() = %v, want [a b] in registration order", all)
	}
}

func TestPool_Close(t *testing.T) {
	pool := NewPool()
	ok := newFakeConn("")
	bad := newFakeConn("")
	bad.closeErr = errors.New("close failed")

	pool.Put(NewManagedClient(backend("ok"), ok))
	pool.Put(NewManagedClient(backend("bad"), bad))

	if err := pool.Close(); err == nil {
		t.Error("expected joined close error")
	}
	if !ok.closed.Load() || !bad.closed.Load() {
		t.Error("every connection should be closed")
	}
	if len(pool.All()) != 0 {
		t.Error("pool should be empty after Close")
	}
	if err := pool.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestManagedClient_Closed(t *testing.T) {
	cli := NewManagedClient(backend("a"), newFakeConn("out", "echo"))
	if err := cli.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cli.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := cli.ListTools(context.Background()); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("ListTools error = %v, want ErrBackendClosed", err)
	}
	if _, err := cli.CallTool(context.Background(), "echo", nil); !errors.Is(err, ErrBackendClosed) {
		t.Errorf("CallTool error = %v, want ErrBackendClosed", err)
	}
}

func TestManagedClient_CallTool_ErrorResult(t *testing.T) {
	conn := newFakeConn("  bad input \n", "echo")
	conn.isError["echo"] = true
	cli := NewManagedClient(BackendConfig{Name: "a", LogRequests: true, LogResponses: true}, conn)

	_, err := cli.CallTool(context.Background(), "echo", map[string]any{"x": 1})
	if err == nil || err.Error() != "bad input" {
		t.Errorf("error = %v, want %q", err, "bad input")
	}
}

func TestPool_ConcurrentAccess(t *testing.T) {
	pool := NewPool()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(3)
		name := string(rune('a' + i%5))
		go func() {
			defer wg.Done()
			pool.Put(NewManagedClient(backend(name), newFakeConn("")))
		}()
		go func() {
			defer wg.Done()
			pool.Get(name)
			pool.All()
		}()
		go func() {
			defer wg.Done()
			pool.Del(name)
		}()
	}
	wg.Wait()
}
