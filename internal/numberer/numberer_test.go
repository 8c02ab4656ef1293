package numberer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

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

func TestNumberer_NumbersCaptionedFloatsInFileSeqOrder(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	specID, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	ids := map[string]int64{}
	insert := func(label string, seq int64, caption string) {
		id, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
			SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md",
			FileSeq: seq, Label: label, Caption: caption, RawContent: "x",
		})
		require.NoError(t, err)
		ids[label] = id
	}
	insert("fig-c", 3, "Third figure")
	insert("fig-a", 1, "First figure")
	insert("fig-uncaptioned", 2, "")

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	n := New(model)

	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, n.run(ctx, st, docs, nil))

	floats, err := store.ListSpecFloats(ctx, st, specID)
	require.NoError(t, err)
	byLabel := map[string]models.SpecFloat{}
	for _, f := range floats {
		byLabel[f.Label] = f
	}

	require.NotNil(t, byLabel["fig-a"].Number)
	require.Equal(t, int64(1), *byLabel["fig-a"].Number)
	require.NotNil(t, byLabel["fig-c"].Number)
	require.Equal(t, int64(2), *byLabel["fig-c"].Number)
	require.Nil(t, byLabel["fig-uncaptioned"].Number, "a float with no caption is excluded from numbering")
}

func TestNumberer_NumbersPerSpecificationNotGlobally(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	specA, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{Identifier: "a", RootPath: "a.md", LongName: "A", TypeRef: "SPECIFICATION"})
	require.NoError(t, err)
	specB, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{Identifier: "b", RootPath: "b.md", LongName: "B", TypeRef: "SPECIFICATION"})
	require.NoError(t, err)

	idA, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
		SpecificationRef: specA, TypeRef: "FIGURE", FromFile: "a.md", FileSeq: 1, Label: "fig-a", Caption: "A", RawContent: "x",
	})
	require.NoError(t, err)
	idB, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
		SpecificationRef: specB, TypeRef: "FIGURE", FromFile: "b.md", FileSeq: 1, Label: "fig-b", Caption: "B", RawContent: "x",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	n := New(model)

	docs := []*pipeline.Context{{SpecID: specA}, {SpecID: specB}}
	require.NoError(t, n.run(ctx, st, docs, nil))

	floatsA, err := store.ListSpecFloats(ctx, st, specA)
	require.NoError(t, err)
	floatsB, err := store.ListSpecFloats(ctx, st, specB)
	require.NoError(t, err)

	var gotA, gotB *int64
	for _, f := range floatsA {
		if f.ID == idA {
			gotA = f.Number
		}
	}
	for _, f := range floatsB {
		if f.ID == idB {
			gotB = f.Number
		}
	}
	require.NotNil(t, gotA)
	require.NotNil(t, gotB)
	require.Equal(t, int64(1), *gotA)
	require.Equal(t, int64(1), *gotB, "each specification numbers its own floats starting at 1")
}

func TestNumberer_SkipsCachedDocuments(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	specID, err := store.InsertSpecification(ctx, st.DB(), &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)
	floatID, err := store.InsertSpecFloat(ctx, st.DB(), &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md", FileSeq: 1, Label: "fig-a", Caption: "A", RawContent: "x",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	n := New(model)

	docs := []*pipeline.Context{{SpecID: specID, Cached: true}}
	require.NoError(t, n.run(ctx, st, docs, nil))

	floats, err := store.ListSpecFloats(ctx, st, specID)
	require.NoError(t, err)
	require.Nil(t, floats[0].Number, "cached documents are not renumbered")
	_ = floatID
}
