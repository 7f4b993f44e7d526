package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

type MCPConfig struct {
	ConnectTimeout  time.Duration `env:"MCP_CONNECT_TIMEOUT" envDefault:"30s"`
	ToolListTimeout time.Duration `env:"MCP_TOOL_LIST_TIMEOUT" envDefault:"5s"`
	ToolCallTimeout time.Duration `env:"MCP_TOOL_CALL_TIMEOUT" envDefault:"2m"`
	CacheTTL        time.Duration `env:"MCP_CACHE_TTL" envDefault:"30s"`
	// How long a request's tool events stay queryable
	EventRetention time.Duration `env:"MCP_EVENT_RETENTION" envDefault:"5m"`
	// Parallel tool listings during aggregation
	ListConcurrency int `env:"MCP_LIST_CONCURRENCY" envDefault:"8"`
}

func NewMCPConfig(ctx context.Context) *MCPConfig {
	c := &MCPConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse MCP config")
	}
	return c
}
