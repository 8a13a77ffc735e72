// Package cmd defines the CLI commands for the manualfinder executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manualfinder",
		Short: "Resolves product manuals for AV service contracts.",
		Long: `manualfinder ingests audio-visual service contracts, extracts the
installed product list and finds a user manual for every product, caching
each result so repeat lookups skip the search entirely.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (environment variables with the MANUALFINDER prefix override it)")

	cmd.AddCommand(newServeCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
