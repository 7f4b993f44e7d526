package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/tuskrelay/pkg/log"
)

const (
	TokenizerChars    = "chars"
	TokenizerTiktoken = "tiktoken"
)

type CompactionConfig struct {
	Enabled      bool          `env:"COMPACTION_ENABLED" envDefault:"true"`
	Interval     time.Duration `env:"COMPACTION_INTERVAL" envDefault:"5m"`
	InitialDelay time.Duration `env:"COMPACTION_INITIAL_DELAY" envDefault:"1m"`

	// Threshold for scheduled sweeps
	MinMessages int `env:"COMPACTION_MIN_MESSAGES" envDefault:"10"`
	// Threshold for operator-requested compaction of one session
	ManualMinMessages int `env:"COMPACTION_MANUAL_MIN_MESSAGES" envDefault:"8"`
	KeepRecent        int `env:"COMPACTION_KEEP_RECENT" envDefault:"6"`

	SummaryTimeout time.Duration `env:"COMPACTION_SUMMARY_TIMEOUT" envDefault:"2m"`
	Tokenizer      string        `env:"COMPACTION_TOKENIZER" envDefault:"chars"`
}

func NewCompactionConfig(ctx context.Context) *CompactionConfig {
	c := &CompactionConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Compaction config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid Compaction config")
	}
	return c
}

func (c CompactionConfig) Validate() error {
	if c.KeepRecent < 1 {
		return fmt.Errorf("keep recent must be positive, got %d", c.KeepRecent)
	}
	if c.MinMessages <= c.KeepRecent {
		return fmt.Errorf("min messages (%d) must exceed keep recent (%d)", c.MinMessages, c.KeepRecent)
	}
	if c.ManualMinMessages <= c.KeepRecent {
		return fmt.Errorf("manual min messages (%d) must exceed keep recent (%d)", c.ManualMinMessages, c.KeepRecent)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	switch c.Tokenizer {
	case TokenizerChars, TokenizerTiktoken:
	default:
		return fmt.Errorf("unknown tokenizer: %s", c.Tokenizer)
	}
	return nil
}
