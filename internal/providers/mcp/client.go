package mcp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

// Conn is the part of an MCP client session the registry needs.
// *client.Client from mcp-go satisfies it.
type Conn interface {
	ListTools(ctx context.Context, req mcpproto.ListToolsRequest) (*mcpproto.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error)
	Close() error
}

// ManagedClient is one live backend connection.
type ManagedClient struct {
	conn   Conn
	cfg    BackendConfig
	mu     sync.RWMutex
	closed bool
}

func NewManagedClient(cfg BackendConfig, conn Conn) *ManagedClient {
	return &ManagedClient{
		conn: conn,
		cfg:  cfg,
	}
}

func (mc *ManagedClient) Name() string {
	return mc.cfg.Name
}

func (mc *ManagedClient) Config() BackendConfig {
	return mc.cfg
}

func (mc *ManagedClient) ListTools(ctx context.Context) ([]mcpproto.Tool, error) {
	conn, err := mc.live()
	if err != nil {
		return nil, err
	}

	resp, err := conn.ListTools(ctx, mcpproto.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Tools, nil
}

// CallTool runs a tool and flattens its text content. A result flagged as error
// becomes a Go error carrying that text.
func (mc *ManagedClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	conn, err := mc.live()
	if err != nil {
		return "", err
	}

	logger := log.FromCtx(ctx).With().Str("backend", mc.cfg.Name).Str("tool", name).Logger()
	if mc.cfg.LogRequests {
		logger.Info().Interface("arguments", args).Msg("mcp request")
	}

	req := mcpproto.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := conn.CallTool(ctx, req)
	if err != nil {
		if mc.cfg.LogResponses {
			logger.Info().Err(err).Msg("mcp response")
		}
		return "", err
	}

	output := contentText(res)
	if mc.cfg.LogResponses {
		logger.Info().Bool("is_error", res.IsError).Str("output", output).Msg("mcp response")
	}

	if res.IsError {
		return "", fmt.Errorf("%s", strings.TrimSpace(output))
	}
	return output, nil
}

func (mc *ManagedClient) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return nil
	}
	mc.closed = true
	if mc.conn == nil {
		return nil
	}
	return mc.conn.Close()
}

func (mc *ManagedClient) live() (Conn, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if mc.closed || mc.conn == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackendClosed, mc.cfg.Name)
	}
	return mc.conn, nil
}

func contentText(res *mcpproto.CallToolResult) string {
	var sb strings.Builder
	for _, content := range res.Content {
		if text, ok := content.(mcpproto.TextContent); ok {
			sb.WriteString(text.Text)
			sb.WriteString("\n")
		} else if textPtr, ok := content.(*mcpproto.TextContent); ok {
			sb.WriteString(textPtr.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
