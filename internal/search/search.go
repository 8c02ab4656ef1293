package search

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/store"
)

// Hit is one FTS5 match, ranked by SQLite's own bm25 relevance score
// (lower is more relevant, matching fts5's native ordering).
type Hit struct {
	SpecificationRef int64
	ObjectID         int64 // 0 unless the hit is an object or attribute row
	FloatID          int64 // 0 unless the hit is a float row
	Snippet          string
	Rank             float64
}

const defaultLimit = 50

// SearchObjects runs query against fts_objects (title_text + content).
func SearchObjects(ctx context.Context, s *store.Store, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var hits []Hit
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var h Hit
		if err := rows.Scan(&h.SpecificationRef, &h.ObjectID, &h.Snippet, &h.Rank); err != nil {
			return err
		}
		hits = append(hits, h)
		return nil
	}, `
		SELECT specification_ref, object_id,
			snippet(fts_objects, 1, '[', ']', '...', 16),
			bm25(fts_objects)
		FROM fts_objects WHERE fts_objects MATCH ? ORDER BY bm25(fts_objects) LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search objects failed: %w", err)
	}
	return hits, nil
}

// SearchAttributes runs query against fts_attributes (name + string_value).
func SearchAttributes(ctx context.Context, s *store.Store, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var hits []Hit
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var h Hit
		if err := rows.Scan(&h.SpecificationRef, &h.ObjectID, &h.Snippet, &h.Rank); err != nil {
			return err
		}
		hits = append(hits, h)
		return nil
	}, `
		SELECT specification_ref, owner_object_id,
			snippet(fts_attributes, 1, '[', ']', '...', 16),
			bm25(fts_attributes)
		FROM fts_attributes WHERE fts_attributes MATCH ? ORDER BY bm25(fts_attributes) LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search attributes failed: %w", err)
	}
	return hits, nil
}

// SearchFloats runs query against fts_floats (caption + content).
func SearchFloats(ctx context.Context, s *store.Store, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	var hits []Hit
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var h Hit
		if err := rows.Scan(&h.SpecificationRef, &h.FloatID, &h.Snippet, &h.Rank); err != nil {
			return err
		}
		hits = append(hits, h)
		return nil
	}, `
		SELECT specification_ref, float_id,
			snippet(fts_floats, 1, '[', ']', '...', 16),
			bm25(fts_floats)
		FROM fts_floats WHERE fts_floats MATCH ? ORDER BY bm25(fts_floats) LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search floats failed: %w", err)
	}
	return hits, nil
}
