package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tfischl/ispnub/internal/operator"
)

func newRunCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the operator loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildChain(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer c.close()

			loop := operator.New(c.hw, c.ticks, c.counter, func() operator.Runner {
				return c.newInterpreter()
			}, c.logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c.logger.Info("operator loop starting")
			return loop.Run(ctx)
		},
	}
}
