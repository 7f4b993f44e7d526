package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/tuskrelay/internal/core"
	"github.com/sandevgo/tuskrelay/internal/transport/cli"
	"github.com/spf13/cobra"
)

var sessionID = cli.DefaultSessionID

// adminCommand runs a chat command once, outside of the console.
func adminCommand(use, short, name string, connect bool, fixed ...string) *cobra.Command {
	return &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var flushLog func()
			ctx, flushLog = setupLogger(ctx)
			defer flushLog()

			c, err := newComponents(ctx)
			if err != nil {
				return err
			}
			defer c.close(ctx)

			if connect {
				if err := c.backends.Start(ctx); err != nil {
					return err
				}
				defer c.backends.Shutdown(ctx)
			}

			target, ok := findCommand(c.router.ListCommands(), name)
			if !ok {
				return fmt.Errorf("command %s is not registered", name)
			}

			out, err := target.Execute(ctx, sessionID, append(fixed, args...))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func findCommand(cmds []core.Command, name string) (core.Command, bool) {
	for _, c := range cmds {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

func init() {
	backendsCmd := adminCommand(
		"backends [list|tools|add <name> <endpoint...> [--sse]|remove <name>|call <tool> [json]]",
		"Manage tool backends",
		"mcp", true,
	)
	// endpoints of stdio backends carry their own flags
	backendsCmd.DisableFlagParsing = true

	memoryCmd := adminCommand(
		"memory [show|raw|sessions|delete|can-compact|compact] [session]",
		"Inspect and compact conversation memory",
		"memory", false,
	)
	memoryCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", cli.DefaultSessionID, "default session")

	sweepCmd := adminCommand(
		"sweep",
		"Run one compaction sweep over all sessions",
		"compaction", false, "sweep",
	)

	rootCmd.AddCommand(backendsCmd, memoryCmd, sweepCmd)
}
