package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/speccompiler/internal/common"
	"github.com/ternarybob/speccompiler/internal/driver"
)

var dryRun bool

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full INITIALIZE -> ANALYZE -> TRANSFORM -> VERIFY -> EMIT pipeline",
	Long: `Evaluates every configured document against the incremental-build
cache, rebuilds whatever is dirty, and emits every configured output
format. Unchanged documents are skipped past INITIALIZE/ANALYZE/TRANSFORM
and only re-enter at EMIT to pick up cache hits.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run INITIALIZE through VERIFY but skip EMIT and cache commit")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	common.PrintBanner(cfg, logger)

	d, err := driver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize build driver: %w", err)
	}
	defer d.Close()
	d.DryRun = dryRun

	sink, runErr := d.Run(context.Background())
	reportSummary(sink)
	if runErr != nil {
		return runErr
	}

	common.PrintShutdownBanner(logger)
	if sink.HasErrors() {
		return fmt.Errorf("build completed with error-level diagnostics")
	}
	return nil
}
