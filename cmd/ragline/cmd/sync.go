package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/ssot"
)

// syncOptions holds CLI flags for sync.
type syncOptions struct {
	bucket   string
	prefix   string
	tenant   string
	kb       string
	strategy string
	pattern  string
	format   string
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	var opts syncOptions

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize a knowledge base with a source bucket",
		Long: `Synchronize a knowledge base against an external source-of-truth
bucket. New objects become pending documents, changed objects get a new
version, and deleted objects are tombstoned.

Examples:
  ragline sync --bucket corp-docs --kb docs
  ragline sync --bucket corp-docs --prefix reports/ --kb docs --pattern "*.pdf"
  ragline sync --bucket corp-docs --kb docs --strategy full`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSync(cmd.Context(), cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.bucket, "bucket", "", "Source bucket (required)")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Object key prefix filter")
	cmd.Flags().StringVar(&opts.tenant, "tenant", "default", "Tenant id")
	cmd.Flags().StringVar(&opts.kb, "kb", "default", "Knowledge base id")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "incremental", "Sync strategy: incremental, full")
	cmd.Flags().StringVar(&opts.pattern, "pattern", "", "Glob filter on object base names")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("bucket")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts syncOptions) error {
	eng, err := newEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	result, err := eng.sync.Sync(ctx, ssot.Config{
		SourceBucket:  opts.bucket,
		Prefix:        opts.prefix,
		TenantID:      opts.tenant,
		KBID:          opts.kb,
		Strategy:      opts.strategy,
		FilePattern:   opts.pattern,
		ManagedBucket: eng.cfg.Blob.Bucket,
	})
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sync complete: %d new, %d modified, %d unchanged, %d deleted\n",
		result.New, result.Modified, result.Unchanged, result.Deleted)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  error %s: %s\n", e.Path, e.Error)
	}
	return nil
}
