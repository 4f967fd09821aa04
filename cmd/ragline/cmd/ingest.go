package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/blob"
	"github.com/ragline/ragline/internal/pipeline"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	tenant   string
	kb       string
	parser   string
	chunker  string
	embedder string
	pipeline string // path to a pipeline config file
	format   string // "text", "json"
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into a knowledge base",
		Long: `Ingest local files into a knowledge base.

Each file is uploaded to the managed bucket, then parsed, chunked,
embedded, and indexed into the knowledge base's hybrid collection.

Examples:
  ragline ingest report.pdf --kb docs
  ragline ingest notes/*.md --kb docs --chunker sentence
  ragline ingest data.csv --kb docs --pipeline ingest.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd, root, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.tenant, "tenant", "default", "Tenant id")
	cmd.Flags().StringVar(&opts.kb, "kb", "default", "Knowledge base id")
	cmd.Flags().StringVar(&opts.parser, "parser", "", "Parser type (default: auto)")
	cmd.Flags().StringVar(&opts.chunker, "chunker", "", "Chunker type (default: recursive)")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder type (default: local)")
	cmd.Flags().StringVar(&opts.pipeline, "pipeline", "", "Pipeline config file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runIngest(ctx context.Context, cmd *cobra.Command, root *rootOptions, args []string, opts ingestOptions) error {
	eng, err := newEngine(ctx, root)
	if err != nil {
		return err
	}
	defer eng.Close()

	cfg, err := buildIngestionConfig(opts)
	if err != nil {
		return err
	}

	// Stage each file in the managed bucket; the orchestrator copies it
	// to its versioned path during ingestion.
	inputs := make([]pipeline.DocumentInput, 0, len(args))
	for _, p := range args {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		name := filepath.Base(p)
		uri := blob.FormatURI(eng.cfg.Blob.Bucket, path.Join("uploads", uuid.NewString(), name))
		if err := eng.blob.Put(ctx, uri, data, ""); err != nil {
			return fmt.Errorf("stage %s: %w", p, err)
		}
		inputs = append(inputs, pipeline.DocumentInput{StorageURI: uri, Filename: name})
	}

	result, err := eng.orch.Ingest(ctx, opts.tenant, opts.kb, inputs, cfg)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d indexed, %d failed, %d skipped\n",
		result.RunID, result.Indexed, result.Failed, result.Skipped)
	for _, doc := range result.Documents {
		if doc.Error != "" {
			fmt.Fprintf(out, "  %s: %s (%s)\n", doc.Filename, doc.Status, doc.Error)
			continue
		}
		fmt.Fprintf(out, "  %s: %s (%d chunks)\n", doc.Filename, doc.Status, doc.ChunkCount)
	}
	return nil
}

func buildIngestionConfig(opts ingestOptions) (pipeline.IngestionConfig, error) {
	var cfg pipeline.IngestionConfig
	if opts.pipeline != "" {
		if err := loadPipelineFile(opts.pipeline, &cfg); err != nil {
			return cfg, err
		}
	}
	// Type-only flags override the file.
	if opts.parser != "" {
		cfg.Parser.Type = opts.parser
	}
	if opts.chunker != "" {
		cfg.Chunker.Type = opts.chunker
	}
	if opts.embedder != "" {
		cfg.Embedder.Type = opts.embedder
	}
	return cfg, nil
}
