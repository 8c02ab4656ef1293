package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/speccompiler/internal/driver"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run INITIALIZE, ANALYZE, and VERIFY only",
	Long: `A CI validation pass: parses every configured document, resolves
relations, and runs every verification check, without ever reaching
TRANSFORM or EMIT and without touching the incremental-build cache.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	d, err := driver.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize verify driver: %w", err)
	}
	defer d.Close()

	sink, runErr := d.Verify(context.Background())
	reportSummary(sink)
	if runErr != nil {
		return runErr
	}

	if sink.HasErrors() {
		return fmt.Errorf("verify completed with error-level diagnostics")
	}
	return nil
}
