package typeregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/speccompiler/internal/models"
)

func TestLoad_DefaultModel(t *testing.T) {
	m, err := Load("")
	require.NoError(t, err)

	assert.Contains(t, m.Objects, "SECTION")
	assert.Contains(t, m.Objects, "HLR")
	assert.Contains(t, m.Objects, "LLR")

	assert.Contains(t, m.Floats, "FIGURE")
	assert.Contains(t, m.Floats, "TABLE")

	assert.Contains(t, m.Relations, "PID_REF")
	assert.Contains(t, m.Relations, "LABEL_REF")
	assert.Equal(t, "PID_REF", m.Relations["PID_REF_HLR"].Extends)

	assert.Contains(t, m.Views, "TOC")
	assert.Equal(t, models.MaterializerTOC, m.Views["TOC"].MaterializerType)

	assert.Contains(t, m.Specifications, "SPECIFICATION")
}

func TestLoad_ProjectOverlayWins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "objects"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "objects", "section.toml"), []byte(`
identifier = "SECTION"
long_name = "Custom Section"
`), 0644))

	m, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "Custom Section", m.Objects["SECTION"].LongName)
}
