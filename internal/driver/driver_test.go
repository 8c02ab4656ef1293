package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/common"
)

const sampleDoc = `# Braking System

## Overview

This specification covers the braking subsystem.

### Requirement

The braking controller shall decelerate the vehicle within the
certified stopping distance.
`

func testConfig(t *testing.T, docPath string) *common.Config {
	t.Helper()
	outDir := t.TempDir()
	return &common.Config{
		Project:   common.ProjectConfig{Code: "BRK", Name: "Braking System"},
		Template:  "default",
		DocFiles:  []string{docPath},
		OutputDir: outDir,
		Outputs: []common.OutputConfig{
			{Format: "json", Path: filepath.Join("out", "{spec_id}.json")},
		},
		Validation: map[string]string{},
	}
}

func writeSampleDoc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "braking.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0o644))
	return path
}

func TestDriver_Run_FreshBuildEmitsJSON(t *testing.T) {
	docPath := writeSampleDoc(t)
	cfg := testConfig(t, docPath)
	logger := arbor.NewLogger()

	d, err := New(cfg, logger)
	require.NoError(t, err)
	defer d.Close()

	sink, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sink.HasErrors(), "unexpected diagnostics: %+v", sink.Records())

	outputPath := filepath.Join(cfg.OutputDir, "out", "braking.json")
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Braking System")
}

func TestDriver_Run_SecondRunIsCachedNoOp(t *testing.T) {
	docPath := writeSampleDoc(t)
	cfg := testConfig(t, docPath)
	logger := arbor.NewLogger()

	d, err := New(cfg, logger)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	sink, err := d.Run(ctx)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	outputPath := filepath.Join(cfg.OutputDir, "out", "braking.json")
	first, err := os.Stat(outputPath)
	require.NoError(t, err)

	sink2, err := d.Run(ctx)
	require.NoError(t, err)
	assert.False(t, sink2.HasErrors(), "unexpected diagnostics on cached run: %+v", sink2.Records())

	second, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime(), "cached run must not rewrite an up-to-date output")
}

func TestDriver_Run_EditedSourceIsRedetectedDirty(t *testing.T) {
	docPath := writeSampleDoc(t)
	cfg := testConfig(t, docPath)
	logger := arbor.NewLogger()

	d, err := New(cfg, logger)
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	_, err = d.Run(ctx)
	require.NoError(t, err)

	edited := sampleDoc + "\n### Another Requirement\n\nA second requirement added later.\n"
	require.NoError(t, os.WriteFile(docPath, []byte(edited), 0o644))

	sink, err := d.Run(ctx)
	require.NoError(t, err)
	assert.False(t, sink.HasErrors(), "unexpected diagnostics: %+v", sink.Records())

	outputPath := filepath.Join(cfg.OutputDir, "out", "braking.json")
	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Another Requirement")
}
