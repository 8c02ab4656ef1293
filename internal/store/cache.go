package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/models"
)

// GetSourceFileSHA1 returns the stored hash for path, or ("", false) if
// no row exists yet (a document seen for the first time).
func GetSourceFileSHA1(ctx context.Context, q Querier, path string) (string, bool, error) {
	var sha1 string
	row := q.QueryRowContext(ctx, `SELECT sha1 FROM source_files WHERE path = ?`, path)
	if err := row.Scan(&sha1); err == sql.ErrNoRows {
		return "", false, nil
	} else if err != nil {
		return "", false, fmt.Errorf("failed to read source_files row for %s: %w", path, err)
	}
	return sha1, true, nil
}

// UpsertSourceFileSHA1 records path's current content hash. Per §4.13's
// deferred-commit rule, the driver must only call this after the owning
// document's EMIT has completed successfully.
func UpsertSourceFileSHA1(ctx context.Context, q Querier, path, sha1 string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO source_files (path, sha1) VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET sha1 = excluded.sha1`, path, sha1)
	return err
}

// ListBuildGraphEdges returns every edge recorded for rootPath.
func ListBuildGraphEdges(ctx context.Context, s *Store, rootPath string) ([]models.BuildGraphEdge, error) {
	var edges []models.BuildGraphEdge
	err := s.QueryAll(ctx, func(rows *sql.Rows) error {
		var e models.BuildGraphEdge
		e.RootPath = rootPath
		if err := rows.Scan(&e.NodePath, &e.NodeSHA1); err != nil {
			return err
		}
		edges = append(edges, e)
		return nil
	}, `SELECT node_path, node_sha1 FROM build_graph WHERE root_path = ?`, rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list build_graph edges for %s: %w", rootPath, err)
	}
	return edges, nil
}

// ReplaceBuildGraphEdges deletes rootPath's prior edge set and inserts
// edges in its place, a single deferred-commit unit (§4.13).
func ReplaceBuildGraphEdges(ctx context.Context, q Querier, rootPath string, edges []models.BuildGraphEdge) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM build_graph WHERE root_path = ?`, rootPath); err != nil {
		return fmt.Errorf("failed to clear build_graph edges for %s: %w", rootPath, err)
	}
	for _, e := range edges {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO build_graph (root_path, node_path, node_sha1) VALUES (?, ?, ?)`,
			rootPath, e.NodePath, e.NodeSHA1); err != nil {
			return fmt.Errorf("failed to insert build_graph edge %s -> %s: %w", rootPath, e.NodePath, err)
		}
	}
	return nil
}

// GetOutputCache returns the cached row for (specID, outputPath), or
// (nil, nil) if no emit has ever succeeded for that pair.
func GetOutputCache(ctx context.Context, q Querier, specID int64, outputPath string) (*models.OutputCacheEntry, error) {
	var row models.OutputCacheEntry
	r := q.QueryRowContext(ctx, `
		SELECT spec_id, output_path, pir_hash, generated_at FROM output_cache
		WHERE spec_id = ? AND output_path = ?`, specID, outputPath)
	if err := r.Scan(&row.SpecID, &row.OutputPath, &row.PIRHash, &row.GeneratedAt); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read output_cache row for spec %d, %s: %w", specID, outputPath, err)
	}
	return &row, nil
}

// UpsertOutputCache records a successful emit's fingerprint, the final
// step of §4.13's "Output cache" rule.
func UpsertOutputCache(ctx context.Context, q Querier, specID int64, outputPath, pirHash string, generatedAt int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO output_cache (spec_id, output_path, pir_hash, generated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(spec_id, output_path) DO UPDATE SET pir_hash = excluded.pir_hash, generated_at = excluded.generated_at`,
		specID, outputPath, pirHash, generatedAt)
	return err
}
