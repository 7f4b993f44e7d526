package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/service/memory"
	"github.com/sandevgo/tuskrelay/internal/transport/cli"
	"github.com/sandevgo/tuskrelay/pkg/log"
	"github.com/sandevgo/tuskrelay/pkg/srv"
	"github.com/spf13/cobra"
)

var ephemeral bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the relay",
	Long:  `Connects tool backends, starts the compaction scheduler and the interactive console.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Str("version", core.TaskVersion).Msg("starting tuskrelay")

		c, err := newComponents(ctx)
		if err != nil {
			return err
		}
		session := cli.DefaultSessionID
		if ephemeral {
			session = memory.NewEphemeralSessionID()
		}
		services := NewServices(ctx, c, session, stop)

		srv.StartServices(ctx, services)

		// Wait for shutdown signal
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("tuskrelay has been shut down gracefully")

		return nil
	},
}

func init() {
	startCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "chat in a temporary session that is never compacted")
	rootCmd.AddCommand(startCmd)
}
