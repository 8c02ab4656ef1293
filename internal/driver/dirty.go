package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/speccompiler/internal/hasher"
	"github.com/ternarybob/speccompiler/internal/include"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
)

// identifierFor derives a document's stable text identifier from its
// root path (file stem, extension dropped), mirroring
// internal/initializer's identifierFor: the two must agree, since the
// driver resolves `{spec_id}` output-path templating and looks up a
// cached document's existing specification row by this same value
// before the Initializer ever runs for it.
func identifierFor(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// docState is the outcome of dirty-detection for one document (§4.13).
type docState struct {
	Identifier string
	Expanded   *include.Result
	SourceSHA1 string
	Dirty      bool
	Existing   *models.Specification // nil if this identifier has never been built
}

// evaluate runs §4.13 step 1-2 for one root document: expand includes,
// then check the five dirty conditions against the store and the
// filesystem.
func evaluate(ctx context.Context, st *store.Store, rootPath string, outputs []pipeline.OutputTarget) (*docState, error) {
	expanded, err := include.Expand(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to expand includes for %s: %w", rootPath, err)
	}

	raw, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rootPath, err)
	}
	sourceSHA1 := hasher.Bytes(raw)

	s := &docState{
		Identifier: identifierFor(rootPath),
		Expanded:   expanded,
		SourceSHA1: sourceSHA1,
	}

	existing, err := st.FindSpecificationByIdentifier(ctx, s.Identifier)
	if err != nil {
		return nil, err
	}
	s.Existing = existing

	if existing == nil {
		s.Dirty = true // (a) missing source_files row follows directly: never built before
		return s, nil
	}

	storedSHA1, ok, err := store.GetSourceFileSHA1(ctx, st.DB(), rootPath)
	if err != nil {
		return nil, err
	}
	if !ok || storedSHA1 != sourceSHA1 { // (a), (b)
		s.Dirty = true
		return s, nil
	}

	dirtyEdges, err := edgesChanged(ctx, st, rootPath, expanded)
	if err != nil {
		return nil, err
	}
	if dirtyEdges { // (c)
		s.Dirty = true
		return s, nil
	}

	for _, target := range outputs { // (d)
		if _, err := os.Stat(target.Path); err != nil {
			s.Dirty = true
			return s, nil
		}
	}

	for _, target := range outputs { // (e)
		cached, err := store.GetOutputCache(ctx, st.DB(), existing.ID, target.Path)
		if err != nil {
			return nil, err
		}
		if cached == nil {
			s.Dirty = true
			return s, nil
		}
	}

	return s, nil
}

// edgesChanged reports whether any include edge discovered by the
// current expansion is absent from, or hashes differently than, the
// edge set stored from the prior build (§4.13 condition c).
func edgesChanged(ctx context.Context, st *store.Store, rootPath string, expanded *include.Result) (bool, error) {
	stored, err := store.ListBuildGraphEdges(ctx, st, rootPath)
	if err != nil {
		return false, err
	}
	storedByPath := make(map[string]string, len(stored))
	for _, e := range stored {
		storedByPath[e.NodePath] = e.NodeSHA1
	}
	for _, e := range expanded.Edges {
		sha1, ok := storedByPath[e.NodePath]
		if !ok || sha1 != e.NodeSHA1 {
			return true, nil
		}
	}
	return false, nil
}

// commit writes s's source hash and include-edge set to the store,
// the deferred-commit step of §4.13 that the driver only calls after
// the owning document's EMIT has completed without error.
func commit(ctx context.Context, st *store.Store, rootPath string, s *docState) error {
	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	q := tx.Querier()

	if err := store.UpsertSourceFileSHA1(ctx, q, rootPath, s.SourceSHA1); err != nil {
		return err
	}
	if err := store.ReplaceBuildGraphEdges(ctx, q, rootPath, s.Expanded.Edges); err != nil {
		return err
	}
	return tx.Commit()
}
