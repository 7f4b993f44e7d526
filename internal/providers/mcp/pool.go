package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type ConnectionPool interface {
	// Connect opens a connection without registering it.
	Connect(ctx context.Context, cfg BackendConfig) (*ManagedClient, error)
	// Put registers a connection, replacing and closing any previous one of the same name.
	Put(cli *ManagedClient) (replaced *ManagedClient)
	// Del unregisters a connection without closing it.
	Del(name string) (*ManagedClient, bool)
	Get(name string) (*ManagedClient, bool)
	// All returns live connections in registration order.
	All() []*ManagedClient
	Close() error
}

var _ ConnectionPool = (*Pool)(nil)

type TransportFactory func(TransportType) (Transport, error)

type Pool struct {
	mu               sync.RWMutex
	clients          map[string]*ManagedClient
	order            []string
	transportFactory TransportFactory
}

func NewPool() *Pool {
	return NewPoolWithFactory(NewTransport)
}

func NewPoolWithFactory(factory TransportFactory) *Pool {
	return &Pool{
		clients:          make(map[string]*ManagedClient),
		transportFactory: factory,
	}
}

func (p *Pool) Connect(ctx context.Context, cfg BackendConfig) (*ManagedClient, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: backend name is empty", ErrConnection)
	}

	tType, err := cfg.GetTransport()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, cfg.Name, err)
	}

	transport, err := p.transportFactory(tType)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, cfg.Name, err)
	}

	conn, err := transport(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, cfg.Name, err)
	}

	cfg.Transport = tType
	return NewManagedClient(cfg, conn), nil
}

// Put keeps the registration position of a replaced name.
func (p *Pool) Put(cli *ManagedClient) *ManagedClient {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := cli.Name()
	old, exists := p.clients[name]
	if !exists {
		p.order = append(p.order, name)
	}
	p.clients[name] = cli
	return old
}

func (p *Pool) Del(name string) (*ManagedClient, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cli, exists := p.clients[name]
	if !exists {
		return nil, false
	}

	delete(p.clients, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	return cli, true
}

func (p *Pool) Get(name string) (*ManagedClient, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cli, ok := p.clients[name]
	return cli, ok
}

func (p *Pool) All() []*ManagedClient {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*ManagedClient, 0, len(p.order))
	for _, name := range p.order {
		result = append(result, p.clients[name])
	}
	return result
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, name := range p.order {
		if err := p.clients[name].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.clients = make(map[string]*ManagedClient)
	p.order = nil

	return errors.Join(errs...)
}
