// Command ispnubd runs the ispnub AVR in-system programming appliance
// on a Linux host: the operator loop, a one-shot programming run, or
// direct inspection of the programming-cycle counter.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "ispnubd",
		Short: "ispnub AVR in-system programming appliance",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/ispnub/config.yaml", "path to board config.yaml")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(&configPath, &verbose))
	root.AddCommand(newOnceCmd(&configPath, &verbose))
	root.AddCommand(newCounterCmd(&configPath, &verbose))
	return root
}
