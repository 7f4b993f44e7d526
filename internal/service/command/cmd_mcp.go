package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/providers/mcp"
)

// BackendAdmin is the backend registration surface.
type BackendAdmin interface {
	AddBackend(ctx context.Context, cfg mcp.BackendConfig) error
	RemoveBackend(ctx context.Context, name string) error
	ListBackends() []mcp.BackendConfig
	ConfiguredBackends() []mcp.BackendConfig
	ListTools(ctx context.Context) ([]mcp.ToolSpec, error)
	ExecuteTool(ctx context.Context, req mcp.ToolRequest) (string, error)
}

type MCPCommand struct {
	backends  BackendAdmin
	formatter *ResponseFormatter
}

func NewMCPCommand(backends BackendAdmin) core.Command {
	return &MCPCommand{
		backends:  backends,
		formatter: NewResponseFormatter(),
	}
}

func (c *MCPCommand) Name() string {
	return "mcp"
}

func (c *MCPCommand) Description() string {
	return "Manage tool backends"
}

func (c *MCPCommand) Usage() []string {
	return []string{
		"list",
		"tools",
		"add <name> <endpoint...> [--sse]",
		"remove <name>",
		"call <tool> [json-arguments]",
	}
}

func (c *MCPCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.list(), nil
	}

	switch args[0] {
	case "list":
		return c.list(), nil
	case "tools":
		return c.tools(ctx)
	case "add":
		if len(args) < 3 {
			return "", usageError(c)
		}
		return c.add(ctx, args[1], args[2:])
	case "remove":
		if len(args) != 2 {
			return "", usageError(c)
		}
		if err := c.backends.RemoveBackend(ctx, args[1]); err != nil {
			return "", err
		}
		return c.formatter.Success(fmt.Sprintf("Backend %s removed", args[1])), nil
	case "call":
		if len(args) < 2 {
			return "", usageError(c)
		}
		return c.call(ctx, args[1], strings.Join(args[2:], " "))
	}
	return "", usageError(c)
}

func (c *MCPCommand) list() string {
	live := make(map[string]bool)
	for _, b := range c.backends.ListBackends() {
		live[b.Name] = true
	}

	configured := c.backends.ConfiguredBackends()
	if len(configured) == 0 && len(live) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Tool Backends"),
			c.formatter.Label("Status", "No backends configured."),
			c.formatter.Tip("Add one with /mcp add <name> <endpoint>"),
		)
	}

	items := make([]string, 0, len(configured))
	for _, b := range configured {
		status := "offline"
		if live[b.Name] {
			status = "connected"
		}
		transport, _ := b.GetTransport()
		items = append(items, fmt.Sprintf("**%s** (%s, %s) `%s`", b.Name, transport, status, b.Endpoint))
	}

	return c.formatter.Combine(
		c.formatter.Info("Tool Backends"),
		c.formatter.Label("Connected", fmt.Sprintf("%d/%d", len(live), len(configured))),
		c.formatter.List(items),
	)
}

func (c *MCPCommand) tools(ctx context.Context) (string, error) {
	tools, err := c.backends.ListTools(ctx)
	if err != nil {
		return "", err
	}

	if len(tools) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("MCP Tools"),
			c.formatter.Label("Status", "No tools are currently available."),
			c.formatter.Tip("Check your backend configuration if tools should be available"),
		), nil
	}

	items := make([]string, len(tools))
	for i, tool := range tools {
		description := strings.Join(strings.Fields(tool.Description), " ")
		if len(description) > 120 {
			description = description[:117] + "..."
		}
		items[i] = fmt.Sprintf("**%s** [%s] %s", tool.Name, tool.Backend, description)
	}

	return c.formatter.Combine(
		c.formatter.Info("MCP Tools"),
		c.formatter.Count("Available tools", len(tools)),
		c.formatter.List(items),
	), nil
}

func (c *MCPCommand) add(ctx context.Context, name string, rest []string) (string, error) {
	cfg := mcp.BackendConfig{Name: name}

	endpoint := make([]string, 0, len(rest))
	for _, a := range rest {
		if a == "--sse" {
			cfg.Transport = mcp.TransportSSE
			continue
		}
		endpoint = append(endpoint, a)
	}
	cfg.Endpoint = strings.Join(endpoint, " ")

	if err := c.backends.AddBackend(ctx, cfg); err != nil {
		return "", err
	}
	return c.formatter.Success(fmt.Sprintf("Backend %s connected", name)), nil
}

func (c *MCPCommand) call(ctx context.Context, tool, args string) (string, error) {
	var raw json.RawMessage
	if args != "" {
		if !json.Valid([]byte(args)) {
			return "", fmt.Errorf("arguments are not valid JSON")
		}
		raw = json.RawMessage(args)
	}

	out, err := c.backends.ExecuteTool(ctx, mcp.ToolRequest{Name: tool, Arguments: raw})
	if err != nil {
		return "", err
	}
	return c.formatter.Combine(
		c.formatter.Info("Result of "+tool),
		strings.TrimSpace(out),
	), nil
}
