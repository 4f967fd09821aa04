package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/pipeline"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	tenant   string
	kb       string
	limit    int
	searcher string
	pipeline string
	format   string
}

func newQueryCmd(root *rootOptions) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Query a knowledge base",
		Long: `Query a knowledge base with hybrid search.

Combines semantic (embedding) and lexical (BM25) search with
Reciprocal Rank Fusion, then runs any configured optimizers.

Examples:
  ragline query "quarterly revenue" --kb docs
  ragline query "error handling" --kb docs --searcher lexical -n 5
  ragline query "onboarding" --kb docs --pipeline retrieve.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, root, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "default", "Tenant id")
	cmd.Flags().StringVar(&opts.kb, "kb", "default", "Knowledge base id")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&opts.searcher, "searcher", "", "Searcher type: hybrid, semantic, lexical")
	cmd.Flags().StringVar(&opts.pipeline, "pipeline", "", "Pipeline config file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, root *rootOptions, query string, opts queryOptions) error {
	eng, err := newEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	var cfg pipeline.RetrievalConfig
	if opts.pipeline != "" {
		if err := loadPipelineFile(opts.pipeline, &cfg); err != nil {
			return err
		}
	}
	if opts.searcher != "" {
		cfg.Searcher.Type = opts.searcher
	}

	result, err := eng.orch.Retrieve(ctx, opts.tenant, opts.kb, query, opts.limit, cfg)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	if len(result.Results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "Found %d results for %q:\n\n", result.TotalResults, query)
	for i, r := range result.Results {
		location := r.DocumentFilename
		if location == "" {
			location = r.ID
		} else if r.ChunkIndex >= 0 {
			location = fmt.Sprintf("%s#%d", location, r.ChunkIndex)
		}
		fmt.Fprintf(out, "%d. %s (score: %.3f)\n", i+1, location, r.Score)
		for _, line := range snippet(r.Content, 3) {
			fmt.Fprintf(out, "   %s\n", line)
		}
		fmt.Fprintln(out)
	}
	return nil
}

// snippet returns the first n non-empty-tail lines of content.
func snippet(content string, n int) []string {
	lines := strings.Split(content, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
