package main

import (
	"fmt"
	"os"

	"github.com/sandevgo/tuskrelay/internal/config"
	"github.com/sandevgo/tuskrelay/internal/providers/mcp"
	"github.com/sandevgo/tuskrelay/pkg/env"
	"github.com/sandevgo/tuskrelay/pkg/log"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the runtime directory with default settings",
	Long: `Writes a .env file with the current settings and an empty backend catalog
into the runtime directory (TUSK_RUNTIME_PATH, ~/.tusk by default).`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)

		appCfg := config.NewAppConfig(ctx)
		if err := os.MkdirAll(appCfg.GetRuntimePath(), 0755); err != nil {
			return fmt.Errorf("failed to create runtime directory: %w", err)
		}

		if _, err := os.Stat(appCfg.GetEnvPath()); err == nil && !forceInit {
			logger.Info().Str("path", appCfg.GetEnvPath()).Msg(".env already exists, use --force to overwrite")
		} else {
			content, err := marshalSettings(
				appCfg,
				config.NewLLMConfig(ctx),
				config.NewMCPConfig(ctx),
				config.NewCompactionConfig(ctx),
				config.NewRedisConfig(ctx),
			)
			if err != nil {
				return err
			}
			if err := os.WriteFile(appCfg.GetEnvPath(), []byte(content), 0600); err != nil {
				return fmt.Errorf("failed to write .env: %w", err)
			}
			logger.Info().Str("path", appCfg.GetEnvPath()).Msg("settings written")
		}

		// Load creates an empty catalog when the file is missing
		if _, err := mcp.NewFileStorage(appCfg.GetMCPConfigPath()).Load(ctx); err != nil {
			return err
		}

		logger.Info().Msgf("initialized runtime directory at: %s", appCfg.GetRuntimePath())
		logger.Info().Msg("You can now run 'tusk start'.")
		return nil
	},
}

func marshalSettings(cfgs ...any) (string, error) {
	var out string
	for _, c := range cfgs {
		s, err := env.MarshalEnv(c)
		if err != nil {
			return "", err
		}
		out += s
	}
	return out, nil
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing .env")
	rootCmd.AddCommand(initCmd)
}
