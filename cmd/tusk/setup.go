package main

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/providers/events"
	"github.com/sandevgo/tuskrelay/internal/providers/llm"
	"github.com/sandevgo/tuskrelay/internal/providers/mcp"
	"github.com/sandevgo/tuskrelay/internal/service/agent"
	"github.com/sandevgo/tuskrelay/internal/service/command"
	"github.com/sandevgo/tuskrelay/internal/service/compaction"
	"github.com/sandevgo/tuskrelay/internal/service/correlation"
	"github.com/sandevgo/tuskrelay/internal/service/memory"
	"github.com/sandevgo/tuskrelay/internal/storage/redis"
	"github.com/sandevgo/tuskrelay/internal/storage/sqlite"
	"github.com/sandevgo/tuskrelay/internal/transport/cli"
	"github.com/sandevgo/tuskrelay/pkg/log"
	"github.com/sandevgo/tuskrelay/pkg/retry"
	"github.com/sandevgo/tuskrelay/pkg/srv"
)

// components is the wired application. cleanups run in reverse order.
type components struct {
	appCfg *config.AppConfig

	memory    *memory.Store
	bus       *events.Bus
	tracker   *correlation.Tracker
	backends  *mcp.Service
	engine    *compaction.Engine
	scheduler *compaction.Scheduler
	agent     *agent.Agent
	router    *command.Router

	cleanups []func() error
}

func newComponents(ctx context.Context) (*components, error) {
	c := &components{}

	// 1. Configuration
	c.appCfg = config.NewAppConfig(ctx)
	mcpCfg := config.NewMCPConfig(ctx)
	llmCfg := config.NewLLMConfig(ctx)
	compCfg := config.NewCompactionConfig(ctx)

	// 2. Storage and event bus
	retrier := retry.NewDefaultRetrier()

	var redisClient *goredis.Client
	if c.appCfg.Storage == config.StorageRedis || c.appCfg.EventBus == config.EventBusRedis {
		client, err := redis.NewClient(ctx, config.NewRedisConfig(ctx), retrier)
		if err != nil {
			return nil, err
		}
		redisClient = client
		c.cleanups = append(c.cleanups, client.Close)
	}

	lists, err := c.initStorage(ctx, redisClient, retrier)
	if err != nil {
		c.close(ctx)
		return nil, err
	}
	c.memory = memory.NewStore(lists)

	if c.bus, err = initBus(ctx, c.appCfg, redisClient); err != nil {
		c.close(ctx)
		return nil, err
	}
	c.cleanups = append(c.cleanups, c.bus.Close)

	c.tracker = correlation.NewTracker(
		correlation.WithRetention(mcpCfg.EventRetention),
		correlation.WithPublisher(c.bus),
	)

	// 3. Tool backends
	c.backends = initMCP(c.appCfg, mcpCfg, c.tracker)

	// 4. LLM providers
	ai, err := llm.NewProvider(ctx, llmCfg)
	if err != nil {
		c.close(ctx)
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	summaryAI, err := llm.NewSummaryProvider(ctx, llmCfg)
	if err != nil {
		c.close(ctx)
		return nil, fmt.Errorf("failed to initialize summary provider: %w", err)
	}

	// 5. Compaction
	c.engine = compaction.NewEngine(compCfg, c.memory, compaction.NewLLMSummarizer(summaryAI, retrier), newEstimator(ctx, compCfg))
	c.scheduler = compaction.NewScheduler(compCfg, c.engine, c.memory)

	// 6. Agent and commands
	c.agent = agent.NewAgent(c.appCfg, ai, c.backends, c.memory, c.tracker)
	c.router = command.New(command.NewCommands(c.backends, c.memory, c.engine, c.scheduler, c.tracker))

	return c, nil
}

// NewServices returns long-running services in start order. Shutdown runs in reverse,
// so storage is closed last.
func NewServices(ctx context.Context, c *components, sessionID string, stop func()) []srv.Service {
	logger := log.FromCtx(ctx)

	services := make([]srv.Service, 0)
	services = append(services, srv.NewCleanup(func() error {
		c.close(ctx)
		return nil
	}))
	services = append(services, c.backends, c.scheduler)

	if c.appCfg.EnableCLI {
		rl, err := cli.NewReadLine(c.appCfg, sessionID, c.agent, c.router, c.bus, stop)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize CLI")
		}
		services = append(services, rl)
	}

	return services
}

func (c *components) initStorage(ctx context.Context, client *goredis.Client, retrier *retry.Retrier) (core.ListStore, error) {
	switch c.appCfg.Storage {
	case config.StorageRedis:
		return redis.NewListStore(client), nil
	case config.StorageSQLite:
		db, err := sqlite.NewDB(ctx, c.appCfg.GetDatabasePath(), retrier)
		if err != nil {
			return nil, err
		}
		c.cleanups = append(c.cleanups, db.Close)
		return sqlite.NewListStore(db), nil
	}
	return nil, fmt.Errorf("unknown storage: %s", c.appCfg.Storage)
}

func initBus(ctx context.Context, cfg *config.AppConfig, client *goredis.Client) (*events.Bus, error) {
	logger := log.NewWatermillLoggerFromCtx(ctx)

	switch cfg.EventBus {
	case config.EventBusMemory:
		return events.NewGoChannelBus(logger), nil
	case config.EventBusRedis:
		redisCfg := config.NewRedisConfig(ctx)
		consumer := redisCfg.EventsConsumer
		if consumer == "" {
			host, _ := os.Hostname()
			consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
		}
		return events.NewRedisStreamBus(client, redisCfg.EventsGroup, consumer, logger)
	}
	return nil, fmt.Errorf("unknown event bus: %s", cfg.EventBus)
}

func initMCP(appCfg *config.AppConfig, cfg *config.MCPConfig, recorder core.ToolEventRecorder) *mcp.Service {
	timeouts := &mcp.Timeouts{
		Connect:  cfg.ConnectTimeout,
		ToolList: cfg.ToolListTimeout,
		ToolCall: cfg.ToolCallTimeout,
	}

	registry := mcp.NewRegistry(mcp.NewPool(), timeouts,
		mcp.WithRecorder(recorder),
		mcp.WithListConcurrency(cfg.ListConcurrency),
	)
	cache := mcp.NewToolCache(registry.ListAllTools, mcp.WithTTL(cfg.CacheTTL))
	catalog := mcp.NewCatalog(mcp.NewFileStorage(appCfg.GetMCPConfigPath()))

	return mcp.NewService(catalog, registry, cache)
}

func newEstimator(ctx context.Context, cfg *config.CompactionConfig) compaction.TokenEstimator {
	if cfg.Tokenizer != config.TokenizerTiktoken {
		return compaction.CharEstimator{}
	}

	est := compaction.NewTiktokenEstimator()
	if err := est.Load(); err != nil {
		log.FromCtx(ctx).Warn().Err(err).Msg("tiktoken unavailable, estimating by characters")
	}
	return est
}

func (c *components) close(ctx context.Context) {
	for i := len(c.cleanups) - 1; i >= 0; i-- {
		if err := c.cleanups[i](); err != nil {
			log.FromCtx(ctx).Error().Err(err).Msg("cleanup failed")
		}
	}
	c.cleanups = nil
}
