package mcp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskrelay/internal/core"
)

// Transport opens and initializes a connection. ctx bounds the handshake only.
type Transport = func(ctx context.Context, cfg BackendConfig) (Conn, error)

func NewTransport(t TransportType) (Transport, error) {
	switch t {
	case TransportStdio:
		return StdioTransport, nil
	case TransportHTTP:
		return HttpTransport, nil
	case TransportSSE:
		return SseTransport, nil
	}

	return nil, fmt.Errorf("unsupported transport type: %s", t)
}

func StdioTransport(ctx context.Context, cfg BackendConfig) (Conn, error) {
	command, args := cfg.CommandLine()
	if command == "" {
		return nil, fmt.Errorf("empty command")
	}

	cli := client.NewClient(mcptransport.NewStdio(command, cfg.envList(), args...))
	return initialize(ctx, cli)
}

func HttpTransport(ctx context.Context, cfg BackendConfig) (Conn, error) {
	cli, err := client.NewStreamableHttpClient(
		cfg.Endpoint,
		mcptransport.WithHTTPHeaders(copyHeaders(cfg.Headers)),
		mcptransport.WithHTTPBasicClient(newHTTPClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http transport: %w", err)
	}
	return initialize(ctx, cli)
}

func SseTransport(ctx context.Context, cfg BackendConfig) (Conn, error) {
	cli, err := client.NewSSEMCPClient(
		cfg.Endpoint,
		mcptransport.WithHeaders(copyHeaders(cfg.Headers)),
		mcptransport.WithHTTPClient(newHTTPClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create SSE transport: %w", err)
	}
	return initialize(ctx, cli)
}

func initialize(ctx context.Context, cli *client.Client) (Conn, error) {
	// Start ties the session (process, stream) to its context, which must outlive the handshake
	if err := cli.Start(context.WithoutCancel(ctx)); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to start client: %w", err)
	}

	req := mcpproto.InitializeRequest{}
	req.Params.ProtocolVersion = mcpproto.LATEST_PROTOCOL_VERSION
	req.Params.Capabilities = mcpproto.ClientCapabilities{}
	req.Params.ClientInfo = mcpproto.Implementation{
		Name:    core.TuskName,
		Version: core.TaskVersion,
	}

	if _, err := cli.Initialize(ctx, req); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	return cli, nil
}

// newHTTPClient creates a fresh transport per backend to avoid shared state
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func copyHeaders(in map[string]string) map[string]string {
	headers := make(map[string]string, len(in))
	for k, v := range in {
		headers[k] = v
	}
	return headers
}
