// Package cmd provides the CLI commands for Ragline.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ragline/ragline/pkg/version"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command for the ragline CLI.
func NewRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "ragline",
		Short: "RAG backend pipeline engine",
		Long: `Ragline ingests documents into hybrid vector and text indexes
and serves retrieval queries over them.

Documents flow through configurable pipelines: parse, chunk, embed,
index on the way in; embed, search, optimize, enrich on the way out.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("ragline version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (default: RAGLINE_* env only)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level: debug, info, warn, error")

	cmd.AddCommand(newIngestCmd(&opts))
	cmd.AddCommand(newQueryCmd(&opts))
	cmd.AddCommand(newSyncCmd(&opts))
	cmd.AddCommand(newComponentsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
