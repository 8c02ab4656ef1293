package initializer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/include"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

const sourceDoc = "# Demo Spec\n" +
	"\n" +
	"## HLR: First Requirement\n" +
	"\n" +
	"> status: approved\n" +
	"\n" +
	"> rationale: explanation text\n" +
	"\n" +
	"See [related section](#section:nested) and [prior work](@cite:Smith2020).\n" +
	"\n" +
	"## Nested Section\n" +
	"\n" +
	"Some body content.\n" +
	"\n" +
	"```figure:diagram1{caption=\"SystemOverview\"}\n" +
	"raw float content\n" +
	"```\n" +
	"\n" +
	"Inline `toc: short` view marker.\n"

func buildTestContext(t *testing.T) (*store.Store, *pipeline.Context, *typeregistry.Model) {
	t.Helper()

	dir := t.TempDir()
	rootPath := filepath.Join(dir, "demo.md")
	require.NoError(t, os.WriteFile(rootPath, []byte(sourceDoc), 0644))

	expanded, err := include.Expand(rootPath)
	require.NoError(t, err)

	doc, err := docast.Parse(expanded.Source)
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(dir, "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := &pipeline.Context{SourcePath: rootPath, Doc: doc}
	return st, ctx, model
}

func TestInitialize_BindsFullDocument(t *testing.T) {
	st, doc, model := buildTestContext(t)
	ctx := context.Background()

	ini := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)

	require.NoError(t, ini.run(ctx, st, []*pipeline.Context{doc}, sink))
	require.NotZero(t, doc.SpecID)

	spec, err := st.FindSpecificationByIdentifier(ctx, "demo")
	require.NoError(t, err)
	require.NotNil(t, spec)
	assert.Equal(t, "Demo Spec", spec.LongName)
	assert.Equal(t, "SPECIFICATION", spec.TypeRef)

	objects, err := store.ListSpecObjects(ctx, st, doc.SpecID)
	require.NoError(t, err)
	require.Len(t, objects, 2)

	hlr := objects[0]
	assert.Equal(t, "HLR", hlr.TypeRef)
	assert.Equal(t, "First Requirement", hlr.TitleText)
	assert.Equal(t, "HLR-001", hlr.PID)
	assert.True(t, hlr.PIDAutoGenerated)
	assert.Equal(t, int64(1), hlr.FileSeq)

	section := objects[1]
	assert.Equal(t, "SECTION", section.TypeRef)
	assert.Equal(t, "Nested Section", section.TitleText)
	assert.Equal(t, "sec1", section.PID)

	require.NotEmpty(t, section.BodyAST, "narrative paragraphs under the heading are retained, not just harvested for links")
	bodyNode, err := docast.DecodeJSON(section.BodyAST)
	require.NoError(t, err)
	assert.Equal(t, docast.KindDocument, bodyNode.Kind)
	require.Len(t, bodyNode.Children, 2, "the plain paragraph and the inline-view marker paragraph both survive")
	assert.Equal(t, "Some body content.", docast.Stringify(bodyNode.Children[0]))

	require.NotEmpty(t, hlr.BodyAST, "the HLR heading's relation-bearing sentence is retained alongside its harvested links")
	hlrBody, err := docast.DecodeJSON(hlr.BodyAST)
	require.NoError(t, err)
	require.Len(t, hlrBody.Children, 1)
	assert.Contains(t, docast.Stringify(hlrBody.Children[0]), "related section")

	attrs, err := store.ListAttributeValues(ctx, st, hlr.ID, 0)
	require.NoError(t, err)
	require.Len(t, attrs, 2)
	byName := map[string]string{}
	for _, a := range attrs {
		if a.EnumRef != nil {
			byName[a.Name] = *a.EnumRef
		} else if a.StringValue != nil {
			byName[a.Name] = *a.StringValue
		}
	}
	assert.Equal(t, "approved", byName["status"])
	assert.Equal(t, "explanation text", byName["rationale"])

	floats, err := store.ListSpecFloats(ctx, st, doc.SpecID)
	require.NoError(t, err)
	require.Len(t, floats, 1)
	assert.Equal(t, "FIGURE", floats[0].TypeRef)
	assert.Equal(t, "diagram1", floats[0].Label)
	assert.Equal(t, "raw float content\n", floats[0].RawContent)
	assert.Equal(t, "SystemOverview", floats[0].Caption)
	require.NotNil(t, floats[0].ParentObjectID)
	assert.Equal(t, section.ID, *floats[0].ParentObjectID)

	views, err := store.ListSpecViews(ctx, st, doc.SpecID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "TOC", views[0].TypeRef)
	assert.Equal(t, "short", views[0].RawContent)

	relations, err := store.ListUnresolvedRelations(ctx, st, doc.SpecID)
	require.NoError(t, err)
	require.Len(t, relations, 2)
	selectors := map[string]bool{}
	byLinkSelector := map[string]string{}
	for _, r := range relations {
		selectors[r.LinkSelector] = true
		byLinkSelector[r.LinkSelector] = r.TargetText
		assert.Nil(t, r.TypeRef)
	}
	assert.True(t, selectors["#"])
	assert.True(t, selectors["@cite"])
	assert.Equal(t, "section:nested", byLinkSelector["#"], "target_text strips the selector prefix")
	assert.Equal(t, "Smith2020", byLinkSelector["@cite"], "target_text strips the selector prefix and its separating colon")
}

func TestInitialize_RebuildClearsPriorContent(t *testing.T) {
	st, doc, model := buildTestContext(t)
	ctx := context.Background()

	ini := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)

	require.NoError(t, ini.run(ctx, st, []*pipeline.Context{doc}, sink))
	firstSpecID := doc.SpecID

	doc.FileSeq = 0
	require.NoError(t, ini.run(ctx, st, []*pipeline.Context{doc}, sink))

	objects, err := store.ListSpecObjects(ctx, st, doc.SpecID)
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	assert.NotEqual(t, firstSpecID, doc.SpecID, "rebuild deletes and reinserts the specification row")
}

func TestInitialize_SkipsCachedDocuments(t *testing.T) {
	st, doc, model := buildTestContext(t)
	ctx := context.Background()
	doc.Cached = true

	ini := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)

	require.NoError(t, ini.run(ctx, st, []*pipeline.Context{doc}, sink))
	assert.Zero(t, doc.SpecID)
}
