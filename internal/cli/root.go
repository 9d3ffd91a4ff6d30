// Package cli defines the trafficwatch command tree.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	LogLevel string
	Format   string // "json" | "text"
}

var validFormats = []string{"text", "json"}

// NewRootCommand creates the root command. Without a subcommand it serves.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	serve := NewServeCommand(opts)
	cmd := &cobra.Command{
		Use:   "trafficwatch",
		Short: "Traffic violation record service",
		Long:  "Ingests, prices and tracks traffic violation records detected by roadside cameras.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			return nil
		},
		RunE:         serve.RunE,
		SilenceUsage: true,
	}
	cmd.Flags().AddFlagSet(serve.Flags())

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error); overrides TRAFFICWATCH_LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format for reports (json|text)")

	cmd.AddCommand(serve)
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewRegistryCommand(opts))
	return cmd
}
