package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const (
	StorageRedis  = "redis"
	StorageSQLite = "sqlite"

	EventBusMemory = "memory"
	EventBusRedis  = "redis"
)

type AppConfig struct {
	RuntimePath string `env:"TUSK_RUNTIME_PATH" envDefault:".tusk"`

	// Conversation memory backend: redis or sqlite
	Storage string `env:"TUSK_STORAGE" envDefault:"redis"`
	// Tool event fan-out: memory or redis
	EventBus string `env:"TUSK_EVENT_BUS" envDefault:"memory"`

	EnableCLI bool `env:"TUSK_ENABLE_CLI" envDefault:"true"`
	LogJSON   bool `env:"TUSK_LOG_JSON" envDefault:"false"`

	// Backend catalog file name inside the runtime path (.yaml or .json)
	MCPConfigFile string `env:"TUSK_MCP_CONFIG" envDefault:"mcp_config.yaml"`

	// Upper bound of model round-trips in one chat turn
	MaxToolIterations int `env:"TUSK_MAX_TOOL_ITERATIONS" envDefault:"10"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	c.RuntimePath = resolvePath(c.RuntimePath)
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "memory.db")
}

func (c AppConfig) GetMCPConfigPath() string {
	if filepath.IsAbs(c.MCPConfigFile) {
		return c.MCPConfigFile
	}
	return filepath.Join(c.RuntimePath, c.MCPConfigFile)
}

func (c AppConfig) GetHistoryPath() string {
	return filepath.Join(c.RuntimePath, "input_history")
}

func (c AppConfig) GetEnvPath() string {
	return filepath.Join(c.RuntimePath, ".env")
}

// GetSystemPath is an optional markdown file prepended to every chat as the system prompt.
func (c AppConfig) GetSystemPath() string {
	return filepath.Join(c.RuntimePath, "SYSTEM.md")
}
