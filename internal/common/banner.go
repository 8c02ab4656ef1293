package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the build startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("SPECCOMPILER")
	b.PrintCenteredText("Specification Document Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Project", config.Project.Code, 15)
	b.PrintKeyValue("Template", config.Template, 15)
	b.PrintKeyValue("Output Dir", config.OutputDir, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("project_code", config.Project.Code).
		Str("project_name", config.Project.Name).
		Str("template", config.Template).
		Int("doc_files", len(config.DocFiles)).
		Msg("Build started")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the configured output surface.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Outputs:\n")

	formats := make([]string, 0, len(config.Outputs))
	for _, o := range config.Outputs {
		fmt.Printf("   - %s -> %s\n", o.Format, o.Path)
		formats = append(formats, o.Format)
	}
	if len(formats) == 0 {
		fmt.Printf("   - no outputs configured\n")
	}

	logger.Info().
		Strs("output_formats", formats).
		Str("bibliography", config.Bibliography).
		Msg("Output surface")
}

// PrintShutdownBanner displays the shutdown banner after the build completes.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("BUILD COMPLETE")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Build finished")
}

// PrintColorizedMessage prints a message with the given color; the logger argument is not used.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints and logs a success message.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("OK %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints and logs an error message.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("ERROR %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints and logs a warning message.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("WARN %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints and logs an informational message.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("INFO %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
