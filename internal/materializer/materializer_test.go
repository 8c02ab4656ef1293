package materializer

import (
	"bytes"
	"context"
	"encoding/json"
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

func TestMaterializeTOC_FiltersByMaxLevel(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 1,
		PID: "sec1", TitleText: "Top", Label: "top", Level: 2,
	})
	require.NoError(t, err)
	_, err = store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "SECTION", FromFile: "demo.md", FileSeq: 2,
		PID: "sec2", TitleText: "Deep", Label: "deep", Level: 3,
	})
	require.NoError(t, err)

	viewID, err := store.InsertSpecView(ctx, q, &models.SpecView{
		SpecificationRef: specID, TypeRef: "TOC", FromFile: "demo.md", FileSeq: 3,
		Label: "toc1", Anchor: "toc1", RawContent: "2",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	mat := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, mat.run(ctx, st, docs, sink))

	views, err := store.ListSpecViews(ctx, st, specID)
	require.NoError(t, err)
	var v models.SpecView
	for _, vv := range views {
		if vv.ID == viewID {
			v = vv
		}
	}
	require.NotEmpty(t, v.ResolvedData)

	var entries []tocEntry
	require.NoError(t, json.Unmarshal([]byte(v.ResolvedData), &entries))
	require.Len(t, entries, 1, "level-3 heading excluded by max_level=2")
	assert.Equal(t, "sec1", entries[0].PID)

	n, err := docast.DecodeJSON(v.ResolvedAST)
	require.NoError(t, err)
	assert.Equal(t, docast.KindList, n.Kind)
	assert.Len(t, n.Children, 1)
}

func TestMaterializeCounterGroupList_OnlyCaptionedNumberedFloats(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	number := int64(1)
	floatID, err := store.InsertSpecFloat(ctx, q, &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md", FileSeq: 1,
		Label: "diagram1", Anchor: "diagram1", Caption: "Overview", Number: &number,
	})
	require.NoError(t, err)
	_, err = store.InsertSpecFloat(ctx, q, &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md", FileSeq: 2,
		Label: "diagram2", Anchor: "diagram2",
	})
	require.NoError(t, err)

	viewID, err := store.InsertSpecView(ctx, q, &models.SpecView{
		SpecificationRef: specID, TypeRef: "LOF", FromFile: "demo.md", FileSeq: 3,
		Label: "lof1", Anchor: "lof1",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	mat := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, mat.run(ctx, st, docs, sink))

	views, err := store.ListSpecViews(ctx, st, specID)
	require.NoError(t, err)
	var v models.SpecView
	for _, vv := range views {
		if vv.ID == viewID {
			v = vv
		}
	}

	var entries []counterEntry
	require.NoError(t, json.Unmarshal([]byte(v.ResolvedData), &entries))
	require.Len(t, entries, 1, "the uncaptioned, unnumbered float is excluded")
	assert.Equal(t, "diagram1", entries[0].PID)
	assert.Equal(t, int64(1), entries[0].Number)
	_ = floatID
}

func TestMaterializeAbbrevList_DedupesExactPairsAndSortsCaseInsensitively(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	// "api" and "API" differ as spellings and both survive; the second
	// "API" line is an exact-pair duplicate of the third and collapses.
	for i, def := range []string{
		"api = Application Programming Interface",
		"CLI = Command Line Interface",
		"API = Application Programming Interface",
		"API = Application Programming Interface",
	} {
		_, err := store.InsertSpecView(ctx, q, &models.SpecView{
			SpecificationRef: specID, TypeRef: "ABBREV", FromFile: "demo.md", FileSeq: int64(i + 1),
			Label: "abbrev" + string(rune('1'+i)), Anchor: "abbrev" + string(rune('1'+i)), RawContent: def,
		})
		require.NoError(t, err)
	}

	viewID, err := store.InsertSpecView(ctx, q, &models.SpecView{
		SpecificationRef: specID, TypeRef: "ABBREV_LIST", FromFile: "demo.md", FileSeq: 10,
		Label: "abbrevlist1", Anchor: "abbrevlist1",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	mat := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, mat.run(ctx, st, docs, sink))

	views, err := store.ListSpecViews(ctx, st, specID)
	require.NoError(t, err)
	var v models.SpecView
	for _, vv := range views {
		if vv.ID == viewID {
			v = vv
		}
	}

	var entries []abbrevEntry
	require.NoError(t, json.Unmarshal([]byte(v.ResolvedData), &entries))
	require.Len(t, entries, 3, "api and API are distinct spellings; the repeated API line dedupes")
	assert.Equal(t, "api", entries[0].Abbrev, "stable sort keeps first-seen order among equal upper-case keys")
	assert.Equal(t, "API", entries[1].Abbrev)
	assert.Equal(t, "CLI", entries[2].Abbrev)
}
