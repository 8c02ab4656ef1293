// Package verifier implements the Verifier component: it runs a fixed
// set of declarative, read-only validation queries ("proofs") against
// the store and reports violations at their policy severity. A proof
// never mutates the store; every finding is reported through the
// diagnostics sink, never returned as a Go error.
package verifier

import (
	"context"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

type Verifier struct {
	Model *typeregistry.Model
}

func New(model *typeregistry.Model) *Verifier {
	return &Verifier{Model: model}
}

// Handler wraps this component's OnVerify callback for registration. It
// runs after every other TRANSFORM-phase handler has settled the store's
// content for this batch of dirty documents.
func (v *Verifier) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "verifier",
		Prerequisites: []string{},
		OnVerify:      v.run,
	}
}

func (v *Verifier) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	for _, doc := range docs {
		if doc.Cached || doc.SpecID == 0 {
			continue
		}
		if err := v.verifySpecification(ctx, st, doc.SpecID, sink); err != nil {
			return fmt.Errorf("verifier: %s: %w", doc.SourcePath, err)
		}
	}
	return nil
}

func (v *Verifier) verifySpecification(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	if err := v.checkObjectAttributes(ctx, st, specID, sink); err != nil {
		return err
	}
	if err := v.checkDuplicatePIDs(ctx, st, specID, sink); err != nil {
		return err
	}
	if err := v.checkFloats(ctx, st, specID, sink); err != nil {
		return err
	}
	if err := v.checkDanglingRelations(ctx, st, specID, sink); err != nil {
		return err
	}
	if err := v.checkViewMaterialization(ctx, st, specID, sink); err != nil {
		return err
	}
	return nil
}

// checkObjectAttributes proves, for every object and every attribute
// slot its type declares, that occurrence count falls within
// [min_occurs, max_occurs] and that numeric values fall within
// [min_value, max_value]. A slot absent from the store entirely and
// required (min_occurs >= 1) is `object_missing_required`; too many
// occurrences is `object_cardinality_over`; a numeric value outside
// range is `object_bounds_violation`.
func (v *Verifier) checkObjectAttributes(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return err
	}

	for i := range objects {
		obj := &objects[i]
		t, ok := v.Model.Objects[obj.TypeRef]
		if !ok || len(t.Attributes) == 0 {
			continue
		}

		attrs, err := store.ListAttributeValues(ctx, st, obj.ID, 0)
		if err != nil {
			return err
		}
		byName := map[string][]models.AttributeValue{}
		for _, a := range attrs {
			byName[a.Name] = append(byName[a.Name], a)
		}

		for _, def := range t.Attributes {
			occurrences := byName[def.Name]
			if def.MinOccurs > 0 && len(occurrences) < def.MinOccurs {
				sink.Emit(diagnostics.KeyObjectMissingRequired,
					fmt.Sprintf("%s: required attribute %q missing (min_occurs=%d, found %d)", obj.PID, def.Name, def.MinOccurs, len(occurrences)),
					obj.FromFile, obj.StartLine)
			}
			if def.MaxOccurs > 0 && len(occurrences) > def.MaxOccurs {
				sink.Emit(diagnostics.KeyObjectCardinalityOver,
					fmt.Sprintf("%s: attribute %q occurs %d times, max_occurs=%d", obj.PID, def.Name, len(occurrences), def.MaxOccurs),
					obj.FromFile, obj.StartLine)
			}
			if def.MinValue == nil && def.MaxValue == nil {
				continue
			}
			for _, a := range occurrences {
				value, ok := numericValue(a)
				if !ok {
					continue
				}
				if def.MinValue != nil && value < *def.MinValue || def.MaxValue != nil && value > *def.MaxValue {
					sink.Emit(diagnostics.KeyObjectBoundsViolation,
						fmt.Sprintf("%s: attribute %q value %g outside [%s, %s]", obj.PID, def.Name, value, boundStr(def.MinValue), boundStr(def.MaxValue)),
						obj.FromFile, obj.StartLine)
				}
			}
		}
	}
	return nil
}

func numericValue(a models.AttributeValue) (float64, bool) {
	if a.RealValue != nil {
		return *a.RealValue, true
	}
	if a.IntValue != nil {
		return float64(*a.IntValue), true
	}
	return 0, false
}

func boundStr(v *float64) string {
	if v == nil {
		return "-inf/+inf"
	}
	return fmt.Sprintf("%g", *v)
}

// checkDuplicatePIDs proves every non-empty PID is unique within its
// specification. The schema's own unique index already enforces this at
// insert time (a duplicate PID fails the write outright rather than
// reaching here), so this proof is defense-in-depth: it only fires if a
// future schema change relaxes that constraint.
func (v *Verifier) checkDuplicatePIDs(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return err
	}

	seen := map[string]models.SpecObject{}
	for _, obj := range objects {
		if obj.PID == "" {
			continue
		}
		if prior, ok := seen[obj.PID]; ok {
			sink.Emit(diagnostics.KeyObjectDuplicatePID,
				fmt.Sprintf("PID %q reused (first seen at %s:%d)", obj.PID, prior.FromFile, prior.StartLine),
				obj.FromFile, obj.StartLine)
			continue
		}
		seen[obj.PID] = obj
	}
	return nil
}

// checkFloats proves every float has an owning object
// (`float_orphan`) and that no label repeats within a specification
// (`float_duplicate_label`, defense-in-depth for the same reason as
// checkDuplicatePIDs: the schema's unique index already prevents it).
func (v *Verifier) checkFloats(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	floats, err := store.ListSpecFloats(ctx, st, specID)
	if err != nil {
		return err
	}

	seen := map[string]models.SpecFloat{}
	for _, f := range floats {
		if f.ParentObjectID == nil {
			sink.Emit(diagnostics.KeyFloatOrphan,
				fmt.Sprintf("float %q has no owning object", f.Label),
				f.FromFile, f.StartLine)
		}
		if prior, ok := seen[f.Label]; ok {
			sink.Emit(diagnostics.KeyFloatDuplicateLabel,
				fmt.Sprintf("float label %q reused (first seen at %s:%d)", f.Label, prior.FromFile, prior.StartLine),
				f.FromFile, f.StartLine)
			continue
		}
		seen[f.Label] = f
	}
	return nil
}

// checkDanglingRelations proves every resolved relation's target row
// still exists. The Analyzer's store-wide stale-reference sweep runs
// before every ANALYZE pass and should leave none of these by the time
// VERIFY runs; this proof exists as the declarative backstop the sweep
// is an optimization of, per the component's read-only "prove it"
// contract.
func (v *Verifier) checkDanglingRelations(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	relations, err := store.ListSpecRelations(ctx, st, specID)
	if err != nil {
		return err
	}
	q := st.DB()

	for i := range relations {
		r := &relations[i]
		switch {
		case r.TargetObjectID != nil:
			obj, err := store.GetSpecObject(ctx, q, *r.TargetObjectID)
			if err != nil {
				return err
			}
			if obj == nil {
				sink.Emit(diagnostics.KeyRelationDangling,
					fmt.Sprintf("relation %q targets deleted object %d", r.TargetText, *r.TargetObjectID),
					r.FromFile, r.LinkLine)
			}
		case r.TargetFloatID != nil:
			f, err := store.GetSpecFloat(ctx, q, *r.TargetFloatID)
			if err != nil {
				return err
			}
			if f == nil {
				sink.Emit(diagnostics.KeyRelationDangling,
					fmt.Sprintf("relation %q targets deleted float %d", r.TargetText, *r.TargetFloatID),
					r.FromFile, r.LinkLine)
			}
		}
	}
	return nil
}

// checkViewMaterialization proves every view owned by the internal View
// Materializer (i.e. not flagged needs_external_render, which is the
// External Render Orchestrator's responsibility and already reports its
// own failures under `float_render_failure`) ended TRANSFORM holding a
// non-empty resolved_ast.
func (v *Verifier) checkViewMaterialization(ctx context.Context, st *store.Store, specID int64, sink *diagnostics.Sink) error {
	views, err := store.ListSpecViews(ctx, st, specID)
	if err != nil {
		return err
	}

	for i := range views {
		view := &views[i]
		vt, ok := v.Model.Views[view.TypeRef]
		if !ok || vt.NeedsExternalRender {
			continue
		}
		if view.ResolvedAST == "" {
			sink.Emit(diagnostics.KeyViewMaterializeFailure,
				fmt.Sprintf("view %q (%s) produced no resolved content", view.Label, view.TypeRef),
				view.FromFile, view.StartLine)
		}
	}
	return nil
}
