package verifier

import (
	"bytes"
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
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "specir.db"), arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func recordKeys(t *testing.T, sink *diagnostics.Sink) map[diagnostics.Key]int {
	t.Helper()
	out := map[diagnostics.Key]int{}
	for _, r := range sink.Records() {
		out[r.Key]++
	}
	return out
}

func TestVerify_FloatOrphanReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecFloat(ctx, q, &models.SpecFloat{
		SpecificationRef: specID, TypeRef: "FIGURE", FromFile: "demo.md", FileSeq: 1,
		Label: "orphan1", Anchor: "orphan1", RawContent: "x",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyFloatOrphan])
}

func TestVerify_RequiredAttributeMissingReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Needs status", Label: "needs-status", Level: 2,
	})
	require.NoError(t, err)

	model := &typeregistry.Model{
		Objects: map[string]models.ObjectType{
			"HLR": {
				Identifier: "HLR",
				Attributes: []models.AttributeTypeDef{
					{Name: "status", Datatype: models.DatatypeString, MinOccurs: 1, MaxOccurs: 1},
				},
			},
		},
		Floats:    map[string]models.FloatType{},
		Relations: map[string]models.RelationType{},
		Views:     map[string]models.ViewType{},
	}

	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyObjectMissingRequired])
}

func TestVerify_CardinalityOverReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	objID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Too many owners", Label: "too-many-owners", Level: 2,
	})
	require.NoError(t, err)

	for _, who := range []string{"alice", "bob"} {
		v := who
		a := models.AttributeValue{
			OwnerObjectID: objID, Name: "owner", RawValue: v,
			Datatype: models.DatatypeString, StringValue: &v,
		}
		_, err = store.InsertAttributeValue(ctx, q, &a)
		require.NoError(t, err)
	}

	model := &typeregistry.Model{
		Objects: map[string]models.ObjectType{
			"HLR": {
				Identifier: "HLR",
				Attributes: []models.AttributeTypeDef{
					{Name: "owner", Datatype: models.DatatypeString, MinOccurs: 0, MaxOccurs: 1},
				},
			},
		},
		Floats:    map[string]models.FloatType{},
		Relations: map[string]models.RelationType{},
		Views:     map[string]models.ViewType{},
	}

	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyObjectCardinalityOver])
}

func TestVerify_BoundsViolationReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	objID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Out of range priority", Label: "out-of-range-priority", Level: 2,
	})
	require.NoError(t, err)

	priority := int64(11)
	_, err = store.InsertAttributeValue(ctx, q, &models.AttributeValue{
		OwnerObjectID: objID, Name: "priority", RawValue: "11",
		Datatype: models.DatatypeInteger, IntValue: &priority,
	})
	require.NoError(t, err)

	min := 1.0
	max := 10.0
	model := &typeregistry.Model{
		Objects: map[string]models.ObjectType{
			"HLR": {
				Identifier: "HLR",
				Attributes: []models.AttributeTypeDef{
					{Name: "priority", Datatype: models.DatatypeInteger, MinOccurs: 0, MaxOccurs: 1, MinValue: &min, MaxValue: &max},
				},
			},
		},
		Floats:    map[string]models.FloatType{},
		Relations: map[string]models.RelationType{},
		Views:     map[string]models.ViewType{},
	}

	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyObjectBoundsViolation])
}

func TestVerify_ViewMaterializationFailureReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	_, err = store.InsertSpecView(ctx, q, &models.SpecView{
		SpecificationRef: specID, TypeRef: "TOC", FromFile: "demo.md", FileSeq: 1,
		Label: "toc1", Anchor: "toc1",
	})
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyViewMaterializeFailure], "TOC was never run through the materializer in this test, so resolved_ast is empty")
}

func TestVerify_DanglingRelationReported(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	q := st.DB()

	specID, err := store.InsertSpecification(ctx, q, &models.Specification{
		Identifier: "demo", RootPath: "demo.md", LongName: "Demo", TypeRef: "SPECIFICATION",
	})
	require.NoError(t, err)

	objID, err := store.InsertSpecObject(ctx, q, &models.SpecObject{
		SpecificationRef: specID, TypeRef: "HLR", FromFile: "demo.md", FileSeq: 1,
		PID: "HLR-001", TitleText: "Target", Label: "target", Level: 2,
	})
	require.NoError(t, err)

	typeRef := "DEFAULT"
	_, err = store.InsertSpecRelation(ctx, q, &models.SpecRelation{
		SpecificationRef: specID, TargetText: "HLR-001", TargetObjectID: &objID,
		TypeRef: &typeRef, LinkSelector: "@", FromFile: "demo.md", LinkLine: 5,
	})
	require.NoError(t, err)

	_, err = q.ExecContext(ctx, `DELETE FROM spec_objects WHERE id = ?`, objID)
	require.NoError(t, err)

	model, err := typeregistry.Load("")
	require.NoError(t, err)
	vr := New(model)
	var buf bytes.Buffer
	sink := diagnostics.NewSink(&buf, nil)
	docs := []*pipeline.Context{{SpecID: specID}}
	require.NoError(t, vr.run(ctx, st, docs, sink))

	keys := recordKeys(t, sink)
	assert.Equal(t, 1, keys[diagnostics.KeyRelationDangling])
}
