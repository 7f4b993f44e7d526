package mcp

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func countingLoader(tools ...ToolSpec) (ToolLoader, *atomic.Int32) {
	var calls atomic.Int32
	return func(ctx context.Context) ([]ToolSpec, error) {
		calls.Add(1)
		return tools, nil
	}, &calls
}

func TestToolCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	load, calls := countingLoader(ToolSpec{Name: "echo", Backend: "a"})
	cache := NewToolCache(load, WithTTL(30*time.Second), WithCacheClock(clock.Now))
	ctx := context.Background()

	steps := []struct {
		advance   time.Duration
		wantCalls int32
	}{
		{advance: 0, wantCalls: 1},
		{advance: 10 * time.Second, wantCalls: 1},
		{advance: 19 * time.Second, wantCalls: 1},
		{advance: 1 * time.Second, wantCalls: 2},
		{advance: 5 * time.Second, wantCalls: 2},
	}

	for i, step := range steps {
		clock.Advance(step.advance)
		tools, err := cache.GetAvailableTools(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(tools) != 1 {
			t.Fatalf("step %d: got %d tools", i, len(tools))
		}
		if got := calls.Load(); got != step.wantCalls {
			t.Errorf("step %d: loads = %d, want %d", i, got, step.wantCalls)
		}
	}
}

func TestToolCache_Invalidate(t *testing.T) {
	load, calls := countingLoader(ToolSpec{Name: "echo"})
	cache := NewToolCache(load)
	ctx := context.Background()

	cache.GetAvailableTools(ctx)
	cache.GetAvailableTools(ctx)
	cache.Invalidate()
	cache.GetAvailableTools(ctx)

	if got := calls.Load(); got != 2 {
		t.Errorf("loads = %d, want 2", got)
	}
}

func TestToolCache_InvalidateDuringRefresh(t *testing.T) {
	var cache *ToolCache
	var calls atomic.Int32
	cache = NewToolCache(func(ctx context.Context) ([]ToolSpec, error) {
		if calls.Add(1) == 1 {
			cache.Invalidate()
		}
		return []ToolSpec{{Name: "echo"}}, nil
	})
	ctx := context.Background()

	cache.GetAvailableTools(ctx)
	cache.GetAvailableTools(ctx)

	if got := calls.Load(); got != 2 {
		t.Errorf("loads = %d, want 2", got)
	}
}

func TestToolCache_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	cache := NewToolCache(func(ctx context.Context) ([]ToolSpec, error) {
		calls.Add(1)
		<-release
		return []ToolSpec{{Name: "echo"}}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetAvailableTools(context.Background()); err != nil {
				t.Errorf("GetAvailableTools: %v", err)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// late arrivals find a fresh snapshot; early ones share the flight
	if got := calls.Load(); got != 1 {
		t.Errorf("loads = %d, want 1", got)
	}
}

func TestToolCache_Empty(t *testing.T) {
	load, _ := countingLoader()
	cache := NewToolCache(load)

	tools, err := cache.GetAvailableTools(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 0 {
		t.Errorf("tools = %v, want none", tools)
	}
}

func TestToolCache_Lookup(t *testing.T) {
	load, _ := countingLoader(
		ToolSpec{Name: "echo", Backend: "a"},
		ToolSpec{Name: "echo", Backend: "b"},
		ToolSpec{Name: "read", Backend: "b"},
	)
	cache := NewToolCache(load)

	if _, ok := cache.Lookup("echo"); ok {
		t.Error("lookup before first load should miss")
	}
	cache.GetAvailableTools(context.Background())

	tool, ok := cache.Lookup("echo")
	if !ok || tool.Backend != "a" {
		t.Errorf("Lookup(echo) = %+v, %v; want backend a", tool, ok)
	}
	if _, ok := cache.Lookup("missing"); ok {
		t.Error("Lookup(missing) should miss")
	}
}

func TestToolCache_ServesStaleOnError(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fail := false
	cache := NewToolCache(func(ctx context.Context) ([]ToolSpec, error) {
		if fail {
			return nil, errors.New("unreachable")
		}
		return []ToolSpec{{Name: "echo"}}, nil
	}, WithCacheClock(clock.Now))
	ctx := context.Background()

	if _, err := cache.GetAvailableTools(ctx); err != nil {
		t.Fatalf("first load: %v", err)
	}

	fail = true
	clock.Advance(time.Minute)
	tools, err := cache.GetAvailableTools(ctx)
	if err != nil {
		t.Fatalf("expected stale snapshot, got %v", err)
	}
	if len(tools) != 1 {
		t.Errorf("tools = %v", tools)
	}
}

func TestToolCache_ErrorWithoutSnapshot(t *testing.T) {
	cache := NewToolCache(func(ctx context.Context) ([]ToolSpec, error) {
		return nil, errors.New("unreachable")
	})

	if _, err := cache.GetAvailableTools(context.Background()); err == nil {
		t.Error("expected error")
	}
}

func TestToolCache_ReturnsCopy(t *testing.T) {
	load, _ := countingLoader(ToolSpec{Name: "echo"})
	cache := NewToolCache(load)
	ctx := context.Background()

	tools, _ := cache.GetAvailableTools(ctx)
	tools[0].Name = "mutated"

	again, _ := cache.GetAvailableTools(ctx)
	if again[0].Name != "echo" {
		t.Errorf("cache was mutated through a returned slice")
	}
}
