package rewriter

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func linkNode(target string) *docast.Node {
	return &docast.Node{Kind: docast.KindLink, Target: target}
}

func TestRewrite_SameDocObjectLink(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	targetID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "First Requirement", Label: "first-requirement",
	})
	require.NoError(t, err)

	link := linkNode("@HLR-001")
	ast, err := link.EncodeJSON()
	require.NoError(t, err)

	sourceID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 2,
		PID: "sec1", TitleText: "Section", AST: ast, Label: "section",
	})
	require.NoError(t, err)

	typeRef := "HLR"
	_, err = store.InsertSpecRelation(ctx, q, &models.SpecRelation{
		SpecificationRef: specID, SourceObjectID: &sourceID, TargetText: "HLR-001",
		TargetObjectID: &targetID, TypeRef: &typeRef, LinkSelector: "@", FromFile: "demo.md",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	rw := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, rw.run(ctx, st, docs, sink))

	obj, err := store.GetSpecObject(ctx, q, sourceID)
	require.NoError(t, err)
	n, err := docast.DecodeJSON(obj.AST)
	require.NoError(t, err)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "#HLR-001", n.Target)
	assert.Equal(t, "HLR-001", docast.Stringify(n))
}

func TestRewrite_CrossDocSectionLinkPrefixesDisplayText(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	otherSpecID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "other", RootPath: "other.md", LongName: "Other", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)
	targetID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: otherSpecID, TypeRef: "SECTION", FromFile: "other.md", FileSeq: 1,
		PID: "sec1", TitleText: "Remote Section",
	})
	require.NoError(t, err)

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	link := linkNode("@sec1")
	ast, err := link.EncodeJSON()
	require.NoError(t, err)
	sourceID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 1,
		PID: "local1", TitleText: "Local", AST: ast,
	})
	require.NoError(t, err)

	typeRef := "SECTION"
	_, err = store.InsertSpecRelation(ctx, q, &models.SpecRelation{
		SpecificationRef: specID, SourceObjectID: &sourceID, TargetText: "sec1",
		TargetObjectID: &targetID, TypeRef: &typeRef, LinkSelector: "@", FromFile: "demo.md",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	rw := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, rw.run(ctx, st, docs, sink))

	obj, err := store.GetSpecObject(ctx, q, sourceID)
	require.NoError(t, err)
	n, err := docast.DecodeJSON(obj.AST)
	require.NoError(t, err)
	assert.Equal(t, "other.ext#sec1", n.Target)
	assert.Equal(t, "other: Remote Section", docast.Stringify(n))
}

func TestRewrite_UnresolvedLinkFallsBackConservatively(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	link := linkNode("#figure:missing")
	ast, err := link.EncodeJSON()
	require.NoError(t, err)
	sourceID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 1,
		PID: "local1", TitleText: "Local", AST: ast,
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	rw := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, rw.run(ctx, st, docs, sink))

	obj, err := store.GetSpecObject(ctx, q, sourceID)
	require.NoError(t, err)
	n, err := docast.DecodeJSON(obj.AST)
	require.NoError(t, err)
	assert.Equal(t, "#missing", n.Target)
}

func TestRewrite_FloatAliasPrefixResolvesToSameTarget(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	floatID, err := store.InsertSpecFloat(ctx, q, &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "PLANTUML", FromFile: "demo.md", FileSeq: 1,
		Label: "diagram1", Anchor: "fig-diagram1",
	})
	require.NoError(t, err)

	link := linkNode("#puml:diagram1")
	ast, err := link.EncodeJSON()
	require.NoError(t, err)
	sourceID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 1,
		PID: "local1", TitleText: "Local", AST: ast,
	})
	require.NoError(t, err)

	typeRef := "PLANTUML"
	_, err = store.InsertSpecRelation(ctx, q, &models.SpecRelation{
		SpecificationRef: specID, SourceObjectID: &sourceID, TargetText: "plantuml:diagram1",
		TargetFloatID: &floatID, TypeRef: &typeRef, LinkSelector: "#", FromFile: "demo.md",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	rw := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, rw.run(ctx, st, docs, sink))

	obj, err := store.GetSpecObject(ctx, q, sourceID)
	require.NoError(t, err)
	n, err := docast.DecodeJSON(obj.AST)
	require.NoError(t, err)
	assert.Equal(t, "#fig-diagram1", n.Target, "alias-spelled target_text resolves via the synthesized lookup entry")
}
