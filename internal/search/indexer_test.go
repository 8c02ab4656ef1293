package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestIndexer_ReindexAndSearchObjects(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Braking subsystem requirement", Label: "braking-req", Level: 2,
	})
	require.NoError(t, err)

	ix := New()
	docs := []*pipeline.Context{{SpecID: specID}}
	sink := diagnostics.NewSink(discard{}, nil)
	require.NoError(t, ix.run(ctx, st, docs, sink))

	hits, err := SearchObjects(ctx, st, "braking", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, specID, hits[0].SpecificationRef)
}

func TestIndexer_ReindexAttributesAndFloats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	objID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Requirement", Label: "req", Level: 2,
	})
	require.NoError(t, err)

	rationale := "because of thermal limits on the actuator"
	_, err = store.InsertAttributeValue(ctx, q, &models.AttributeValue{
		OwnerObjectID: objID, Name: "rationale", RawValue: rationale,
		Datatype: models.DatatypeString, StringValue: &rationale,
	})
	require.NoError(t, err)

	_, err = store.InsertSpecFloat(ctx, q, &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md", FileSeq: 2,
		Label: "fig-1", Caption: "Actuator thermal profile", RawContent: "a plotted thermal curve",
	})
	require.NoError(t, err)

	ix := New()
	docs := []*pipeline.Context{{SpecID: specID}}
	sink := diagnostics.NewSink(discard{}, nil)
	require.NoError(t, ix.run(ctx, st, docs, sink))

	attrHits, err := SearchAttributes(ctx, st, "thermal", 10)
	require.NoError(t, err)
	require.Len(t, attrHits, 1)

	floatHits, err := SearchFloats(ctx, st, "thermal", 10)
	require.NoError(t, err)
	require.Len(t, floatHits, 1)
	assert.Equal(t, objID, attrHits[0].ObjectID)
}

func TestIndexer_ReindexIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Braking subsystem requirement", Label: "braking-req", Level: 2,
	})
	require.NoError(t, err)

	ix := New()
	docs := []*pipeline.Context{{SpecID: specID}}
	sink := diagnostics.NewSink(discard{}, nil)
	require.NoError(t, ix.run(ctx, st, docs, sink))
	require.NoError(t, ix.run(ctx, st, docs, sink))

	hits, err := SearchObjects(ctx, st, "braking", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "reindexing the same specification twice must not duplicate fts rows")
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
