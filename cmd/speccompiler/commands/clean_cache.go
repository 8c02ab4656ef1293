package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ternarybob/speccompiler/internal/store"
)

var cleanCacheCmd = &cobra.Command{
	Use:   "clean-cache",
	Short: "Drop the incremental-build cache, forcing a full rebuild",
	Long: `Drops build_graph, source_files, and output_cache rows (but not
the SPEC-IR content tables) so the next build treats every configured
document as dirty.`,
	RunE: runCleanCache,
}

func init() {
	rootCmd.AddCommand(cleanCacheCmd)
}

func runCleanCache(cmd *cobra.Command, args []string) error {
	st, err := store.Open(filepath.Join(cfg.OutputDir, "specir.db"), logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.CleanCache(); err != nil {
		return fmt.Errorf("failed to clean incremental-build cache: %w", err)
	}

	logger.Info().Msg("incremental-build cache cleared, next build will be a full rebuild")
	return nil
}
