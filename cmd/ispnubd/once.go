package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newOnceCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "run the loaded script image a single time and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildChain(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer c.close()

			in := c.newInterpreter()
			ok, err := in.Run()
			if err != nil {
				return fmt.Errorf("script run: %w", err)
			}
			if !ok {
				return fmt.Errorf("script run failed")
			}
			c.logger.Info("script run succeeded")
			return nil
		},
	}
}
