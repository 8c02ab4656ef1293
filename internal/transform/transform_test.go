package transform

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

func TestTransformListing_WrapsAsCodeBlock(t *testing.T) {
	node, err := transformListing("fmt.Println(\"hi\")\n", map[string]string{"lang": "go"})
	require.NoError(t, err)
	require.Equal(t, docast.KindCodeBlock, node.Kind)
	require.Equal(t, "go", node.Lang)
}

func TestTransformFigure_UsesSrcAttributeWhenPresent(t *testing.T) {
	node, err := transformFigure("fallback line\n", map[string]string{"src": "diagrams/overview.svg", "caption": "Overview"})
	require.NoError(t, err)
	require.Equal(t, docast.KindParagraph, node.Kind)
	require.Len(t, node.Children, 1)
	img := node.Children[0]
	require.Equal(t, "diagrams/overview.svg", img.Target)
	require.Equal(t, "Overview", img.Title)
}

func TestTransformer_RunPopulatesResolvedASTForInternalTypes(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	specID, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	floatID, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "TABLE", FromFile: "demo.md", FileSeq: 1,
		Label: "table1", RawContent: "A,B\n1,2\n", PandocAttributes: `{"header-rows":"1"}`,
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	tr := New(model)

	docs := []*pipeline.Context{{SpecID: specID}}
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	require.NoError(t, tr.run(ctx, st, docs, sink))

	floats, err := store.ListSpecFloats(ctx, st, specID)
	require.NoError(t, err)
	require.Len(t, floats, 1)
	require.Equal(t, floatID, floats[0].ID)
	require.NotEmpty(t, floats[0].ResolvedAST)

	node, err := docast.DecodeJSON(floats[0].ResolvedAST)
	require.NoError(t, err)
	require.Equal(t, docast.KindTable, node.Kind)
}

func TestTransformer_SkipsExternallyRenderedTypes(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	specID, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	floatID, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "CHART", FromFile: "demo.md", FileSeq: 1,
		Label: "chart1", RawContent: "bar chart spec",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	tr := New(model)

	docs := []*pipeline.Context{{SpecID: specID}}
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	require.NoError(t, tr.run(ctx, st, docs, sink))

	floats, err := store.ListSpecFloats(ctx, st, specID)
	require.NoError(t, err)
	require.Len(t, floats, 1)
	require.Equal(t, floatID, floats[0].ID)
	require.Empty(t, floats[0].ResolvedAST, "needs_external_render=true types are left for the render orchestrator")
}
