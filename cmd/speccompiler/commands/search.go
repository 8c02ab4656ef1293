package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ternarybob/speccompiler/internal/search"
	"github.com/ternarybob/speccompiler/internal/store"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over object titles, attribute values, and float captions",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum hits per category")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	st, err := store.Open(filepath.Join(cfg.OutputDir, "specir.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	objHits, err := search.SearchObjects(ctx, st, query, searchLimit)
	if err != nil {
		return fmt.Errorf("object search failed: %w", err)
	}
	attrHits, err := search.SearchAttributes(ctx, st, query, searchLimit)
	if err != nil {
		return fmt.Errorf("attribute search failed: %w", err)
	}
	floatHits, err := search.SearchFloats(ctx, st, query, searchLimit)
	if err != nil {
		return fmt.Errorf("float search failed: %w", err)
	}

	printHits("Objects", objHits)
	printHits("Attributes", attrHits)
	printHits("Floats", floatHits)
	return nil
}

func printHits(label string, hits []search.Hit) {
	fmt.Printf("%s (%d):\n", label, len(hits))
	for _, h := range hits {
		fmt.Printf("  spec=%d %s\n", h.SpecificationRef, h.Snippet)
	}
}
