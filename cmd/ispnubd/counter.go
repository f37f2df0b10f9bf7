package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tfischl/ispnub/internal/counter"
)

func newCounterCmd(configPath *string, verbose *bool) *cobra.Command {
	root := &cobra.Command{
		Use:   "counter",
		Short: "inspect or reset the programming-cycle counter",
	}
	root.AddCommand(newCounterShowCmd(configPath, verbose))
	root.AddCommand(newCounterResetCmd(configPath, verbose))
	return root
}

func newCounterShowCmd(configPath *string, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "print the current counter value",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildChain(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer c.close()

			v, err := c.counter.Read()
			if err != nil {
				return err
			}
			if v == counter.Virgin {
				fmt.Println("virgin (uninitialized)")
				return nil
			}
			fmt.Println(v)
			return nil
		},
	}
}

func newCounterResetCmd(configPath *string, verbose *bool) *cobra.Command {
	var value uint16
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "set the counter to an explicit value",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := buildChain(*configPath, *verbose)
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.counter.Write(value); err != nil {
				return err
			}
			c.logger.Info("counter reset", "value", value)
			return nil
		},
	}
	cmd.Flags().Uint16Var(&value, "value", 0, "new counter value")
	return cmd
}
