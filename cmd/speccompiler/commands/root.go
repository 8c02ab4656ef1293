// Package commands implements the speccompiler command-line interface:
// build, verify, clean-cache, and search, each operating against the
// same project configuration and SPEC-IR store.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/common"
	"github.com/ternarybob/speccompiler/internal/diagnostics"
)

var (
	configFiles []string
	cfg         *common.Config
	logger      arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "speccompiler",
	Short:         "Compile SPEC-IR documents into rendered outputs",
	Long:          `speccompiler turns markdown specification sources into a relational SPEC-IR model and renders them to docx, html5, markdown, or json.`,
	Version:       common.GetVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringArrayVarP(&configFiles, "config", "c", nil, "configuration file path (repeatable, later files override earlier ones)")
	rootCmd.PersistentPreRunE = loadConfigAndLogger
}

// loadConfigAndLogger runs before every subcommand: it loads the merged
// TOML configuration and wires the global logger, mirroring the
// teacher's "defaults -> file1 -> file2 -> ..." startup sequence minus
// the single-binary flag parsing it replaces.
func loadConfigAndLogger(cmd *cobra.Command, args []string) error {
	paths := configFiles
	if len(paths) == 0 {
		if _, err := os.Stat("speccompiler.toml"); err == nil {
			paths = append(paths, "speccompiler.toml")
		}
	}

	loaded, err := common.LoadConfig(paths...)
	if err != nil {
		if len(paths) == 0 {
			return fmt.Errorf("no config file found and none specified with --config: %w", err)
		}
		return fmt.Errorf("failed to load configuration %v: %w", paths, err)
	}
	cfg = loaded
	logger = common.SetupLogger(cfg)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// reportSummary logs the per-level diagnostic counts after a driver run.
// Individual diagnostic records have already been streamed to stderr by
// the Sink itself (§6); this is just the roll-up.
func reportSummary(sink *diagnostics.Sink) {
	if sink == nil {
		return
	}
	counts := sink.Summary()
	logger.Info().
		Int("errors", counts[diagnostics.LevelError]).
		Int("warnings", counts[diagnostics.LevelWarn]).
		Int("info", counts[diagnostics.LevelInfo]).
		Int("debug", counts[diagnostics.LevelDebug]).
		Msg("diagnostic summary")
}
