// Package analyzer implements the Relation Analyzer (§4.7): it resolves
// unresolved SpecRelation rows to a target object or float and infers
// the winning relation type by specificity score.
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// Analyzer resolves unresolved relations against the type registry.
type Analyzer struct {
	Model *typeregistry.Model
}

// New returns an Analyzer bound to model.
func New(model *typeregistry.Model) *Analyzer {
	return &Analyzer{Model: model}
}

// Handler returns this component's registration record for the ANALYZE
// phase. It has no prerequisites: the Initializer populates
// spec_relations but runs in a separate phase entirely.
func (a *Analyzer) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "analyzer",
		Prerequisites: []string{},
		OnAnalyze:     a.run,
	}
}

// run performs the store-wide stale-reference sweep, extends the working
// set of dirty documents with any specification the sweep left holding
// unresolved relations, then resolves every unresolved relation belonging
// to a specification in the working set (§4.7).
func (a *Analyzer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	q := st.DB()

	staleSpecs, err := store.StaleReferenceSweep(ctx, q)
	if err != nil {
		return fmt.Errorf("stale reference sweep failed: %w", err)
	}

	working := map[int64]bool{}
	for _, d := range docs {
		if d.Cached || d.SpecID == 0 {
			continue
		}
		working[d.SpecID] = true
	}
	for _, specID := range staleSpecs {
		working[specID] = true
	}

	specIDs := make([]int64, 0, len(working))
	for id := range working {
		specIDs = append(specIDs, id)
	}
	sort.Slice(specIDs, func(i, j int) bool { return specIDs[i] < specIDs[j] })

	for _, specID := range specIDs {
		if err := a.resolveSpecification(ctx, st, specID, sink); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) resolveSpecification(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	relations, err := store.ListUnresolvedRelations(ctx, st, specID)
	if err != nil {
		return fmt.Errorf("failed to list unresolved relations for spec %d: %w", specID, err)
	}

	q := st.DB()
	for i := range relations {
		if err := a.resolveOne(ctx, q, &relations[i], sink); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) resolveOne(ctx context.Context, q store.Querier, r *models.SpecRelation, sink *diagnostics.Sink) error {
	match, ambiguous, err := a.resolveTarget(ctx, q, r)
	if err != nil {
		return fmt.Errorf("target resolution failed for relation %d: %w", r.ID, err)
	}
	if match == nil {
		sink.Emit(diagnostics.KeyRelationUnresolved,
			fmt.Sprintf("unresolved relation target %q (selector %s)", r.TargetText, r.LinkSelector),
			r.FromFile, r.LinkLine)
		return nil
	}

	sourceTypeRef := ""
	if r.SourceObjectID != nil {
		sourceTypeRef, err = store.SourceObjectTypeRef(ctx, q, *r.SourceObjectID)
		if err != nil {
			return fmt.Errorf("failed to load source type for relation %d: %w", r.ID, err)
		}
	}

	winner, typeAmbiguous, ok := a.scoreTypes(r, sourceTypeRef, match.TypeRef)
	if !ok {
		sink.Emit(diagnostics.KeyRelationUnresolved,
			fmt.Sprintf("relation %q resolved a target but no relation type matched its constraints", r.TargetText),
			r.FromFile, r.LinkLine)
		return nil
	}

	isAmbiguous := ambiguous || typeAmbiguous
	if isAmbiguous {
		sink.Emit(diagnostics.KeyRelationAmbiguous,
			fmt.Sprintf("relation %q resolved ambiguously (type %s)", r.TargetText, winner),
			r.FromFile, r.LinkLine)
	}

	return store.ResolveRelation(ctx, q, r.ID, match.ObjectID, match.FloatID, winner, isAmbiguous)
}
