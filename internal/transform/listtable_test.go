package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/speccompiler/internal/docast"
)

func TestTransformTable_CSVWithHeaderRow(t *testing.T) {
	raw := "Name,Role\nAda,Engineer\nGrace,Admiral\n"
	node, err := transformTable(raw, map[string]string{"header-rows": "1"})
	require.NoError(t, err)
	require.Equal(t, docast.KindTable, node.Kind)
	require.Len(t, node.Children, 3)

	header := node.Children[0]
	assert.Equal(t, "true", header.Attrs["header"])
	require.Len(t, header.Children, 2)
	assert.Equal(t, "Name", header.Children[0].Text)

	dataRow := node.Children[1]
	assert.Empty(t, dataRow.Attrs["header"])
	assert.Equal(t, "Ada", dataRow.Children[0].Text)
}

func TestTransformTable_TSVAutoDetected(t *testing.T) {
	raw := "Name\tRole\nAda\tEngineer\n"
	node, err := transformTable(raw, nil)
	require.NoError(t, err)
	require.Len(t, node.Children, 2)
	assert.Equal(t, "Name", node.Children[0].Children[0].Text)
	assert.Equal(t, "Engineer", node.Children[1].Children[1].Text)
}

func TestTransformTable_ListTableBulletForm(t *testing.T) {
	raw := "- Name\n  - Ada\n  - Grace\n- Role\n  - Engineer\n  - Admiral\n"
	node, err := transformTable(raw, map[string]string{"header-rows": "1"})
	require.NoError(t, err)
	require.Len(t, node.Children, 2, "each top-level bullet is one row")
	assert.Equal(t, "Name", node.Children[0].Children[0].Text)
	assert.Equal(t, "Ada", node.Children[0].Children[1].Text)
	assert.Equal(t, "Grace", node.Children[0].Children[2].Text)
}

func TestNormalizeWidths_RescalesToSumOne(t *testing.T) {
	widths := normalizeWidths([]float64{1, 1, 2})
	require.Len(t, widths, 3)
	var sum float64
	for _, w := range widths {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 0.0001)
	assert.InDelta(t, 0.5, widths[2], 0.0001)
}

func TestTransformTable_WidthsAndAlignsStoredAsAttrs(t *testing.T) {
	raw := "A,B\n1,2\n"
	node, err := transformTable(raw, map[string]string{"widths": "1,3", "aligns": "l,r"})
	require.NoError(t, err)
	assert.Equal(t, "l,r", node.Attrs["aligns"])
	assert.Contains(t, node.Attrs["widths"], "0.25")
}
