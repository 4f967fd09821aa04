package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragline/ragline/internal/component"
)

func newComponentsCmd() *cobra.Command {
	var category string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "components",
		Short: "List registered pipeline components",
		Long: `List the pipeline components available in the registry,
grouped by category: parsers, chunkers, embedders, indexers,
searchers, optimizers.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := component.Default()

			categories := component.Categories()
			if category != "" {
				categories = []component.Category{component.Category(category)}
			}

			listing := make(map[string][]component.Info, len(categories))
			for _, cat := range categories {
				infos := registry.List(cat)
				if len(infos) == 0 && category != "" {
					return fmt.Errorf("unknown category %q", category)
				}
				listing[string(cat)] = infos
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listing)
			}

			out := cmd.OutOrStdout()
			for _, cat := range categories {
				fmt.Fprintf(out, "%s:\n", cat)
				for _, info := range listing[string(cat)] {
					if info.Dimension > 0 {
						fmt.Fprintf(out, "  %-16s %s (dim %d)\n", info.Name, info.Description, info.Dimension)
						continue
					}
					fmt.Fprintf(out, "  %-16s %s\n", info.Name, info.Description)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Limit to one category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
