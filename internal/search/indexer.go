// Package search implements the "Full-text indices" surface (§3): three
// SQLite FTS5 virtual tables populated during EMIT and queried by a
// small Hit-returning API, grounded on the teacher's
// internal/services/search/fts5_search_service.go.
package search

import (
	"context"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
)

// Indexer is the EMIT-phase handler that keeps fts_objects/fts_attributes/
// fts_floats in sync with a specification's current SPEC-IR rows.
type Indexer struct{}

// New returns an Indexer.
func New() *Indexer { return &Indexer{} }

// Handler wraps this component's OnEmit callback. It has no ordering
// dependency on the Emitter: indexing reads straight from the
// relational store, not from the Emitter's rendered output.
func (ix *Indexer) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "search_indexer",
		Prerequisites: []string{"assembler"},
		OnEmit:        ix.run,
	}
}

func (ix *Indexer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	seen := map[int64]bool{}
	for _, doc := range docs {
		if doc.SpecID == 0 || seen[doc.SpecID] {
			continue
		}
		seen[doc.SpecID] = true
		if err := ix.reindexSpecification(ctx, st, doc.SpecID); err != nil {
			return fmt.Errorf("search indexer: spec %d: %w", doc.SpecID, err)
		}
	}
	return nil
}

// reindexSpecification replaces every fts_* row belonging to specID with
// the current content of its spec_objects/attribute_values/spec_floats
// rows, a single delete-then-reinsert transaction mirroring
// internal/store/cache.go's ReplaceBuildGraphEdges.
func (ix *Indexer) reindexSpecification(ctx context.Context, st *store.Store, specID int64) error {
	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return err
	}
	floats, err := store.ListSpecFloats(ctx, st, specID)
	if err != nil {
		return err
	}
	attrsByObject := make(map[int64][]models.AttributeValue, len(objects))
	for _, o := range objects {
		attrs, err := store.ListAttributeValues(ctx, st, o.ID, 0)
		if err != nil {
			return err
		}
		attrsByObject[o.ID] = attrs
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	q := tx.Querier()

	if _, err := q.ExecContext(ctx, `DELETE FROM fts_objects WHERE specification_ref = ?`, specID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM fts_attributes WHERE specification_ref = ?`, specID); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM fts_floats WHERE specification_ref = ?`, specID); err != nil {
		return err
	}

	for _, o := range objects {
		content := bodyText(o.BodyAST)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO fts_objects (title_text, content, specification_ref, object_id)
			VALUES (?, ?, ?, ?)`, o.TitleText, content, specID, o.ID); err != nil {
			return fmt.Errorf("failed to index object %d: %w", o.ID, err)
		}

		for _, a := range attrsByObject[o.ID] {
			value := a.RawValue
			if a.StringValue != nil {
				value = *a.StringValue
			}
			if _, err := q.ExecContext(ctx, `
				INSERT INTO fts_attributes (name, string_value, specification_ref, owner_object_id)
				VALUES (?, ?, ?, ?)`, a.Name, value, specID, o.ID); err != nil {
				return fmt.Errorf("failed to index attribute %d: %w", a.ID, err)
			}
		}
	}

	for _, f := range floats {
		content := f.RawContent
		if content == "" {
			content = bodyText(f.ResolvedAST)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO fts_floats (caption, content, specification_ref, float_id)
			VALUES (?, ?, ?, ?)`, f.Caption, content, specID, f.ID); err != nil {
			return fmt.Errorf("failed to index float %d: %w", f.ID, err)
		}
	}

	return tx.Commit()
}

// bodyText decodes an encoded docast AST (§ the shape internal/docast's
// EncodeJSON/DecodeJSON round-trip) to the plain-text content FTS5
// should index. An empty or malformed AST yields an empty string rather
// than failing the whole reindex: a body with no prose contributes no
// content, not a broken index.
func bodyText(ast string) string {
	if ast == "" {
		return ""
	}
	n, err := docast.DecodeJSON(ast)
	if err != nil || n == nil {
		return ""
	}
	return docast.Stringify(n)
}
