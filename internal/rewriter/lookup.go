package rewriter

import (
	"context"
	"strconv"
	"strings"

	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// lookupKey identifies one resolved relation occurrence by the exact
// triple the Initializer used when it harvested the link (§4.5 step 5):
// the object the link appeared under, the selector that introduced it,
// and the normalized body text.
type lookupKey struct {
	sourceObjectID int64
	linkSelector   string
	targetText     string
}

// target is what a resolved relation rewrites a matching Link node into.
type target struct {
	crossDoc     bool
	targetSpecID string // identifier of the specification owning the target
	anchor       string
	displayText  string
}

// buildLookup collects every resolved relation belonging to specID into
// a table keyed by (source_object_id, link_selector, target_text), plus
// synthesized entries for every alias of a resolved float target's
// canonical type prefix so `plantuml:label` and `puml:label` resolve
// identically (§4.11).
func buildLookup(ctx context.Context, st *store.Store, model *typeregistry.Model, specID int64) (map[lookupKey]target, error) {
	relations, err := store.ListSpecRelations(ctx, st, specID)
	if err != nil {
		return nil, err
	}

	q := st.DB()
	out := map[lookupKey]target{}

	for i := range relations {
		r := &relations[i]
		if !r.Resolved() {
			continue
		}
		key := lookupKey{
			sourceObjectID: derefOrZero(r.SourceObjectID),
			linkSelector:   r.LinkSelector,
			targetText:     r.TargetText,
		}

		switch {
		case r.TargetObjectID != nil:
			obj, err := store.GetSpecObject(ctx, q, *r.TargetObjectID)
			if err != nil {
				return nil, err
			}
			if obj == nil {
				continue
			}
			t, err := objectTarget(ctx, q, specID, obj)
			if err != nil {
				return nil, err
			}
			out[key] = t

		case r.TargetFloatID != nil:
			f, err := store.GetSpecFloat(ctx, q, *r.TargetFloatID)
			if err != nil {
				return nil, err
			}
			if f == nil {
				continue
			}
			t, err := floatTarget(ctx, q, specID, f, model)
			if err != nil {
				return nil, err
			}
			out[key] = t

			for _, aliasText := range aliasTargetTexts(r.TargetText, f.TypeRef, model) {
				aliasKey := lookupKey{sourceObjectID: key.sourceObjectID, linkSelector: key.linkSelector, targetText: aliasText}
				if _, exists := out[aliasKey]; !exists {
					out[aliasKey] = t
				}
			}
		}
	}

	return out, nil
}

func objectTarget(ctx context.Context, q store.Querier, fromSpecID int64, obj *models.SpecObject) (target, error) {
	crossDoc := obj.SpecificationRef != fromSpecID
	t := target{crossDoc: crossDoc, anchor: obj.PID, displayText: obj.PID}

	if obj.TypeRef == "SECTION" {
		t.displayText = obj.TitleText
	}

	if crossDoc {
		spec, err := store.GetSpecification(ctx, q, obj.SpecificationRef)
		if err != nil {
			return target{}, err
		}
		if spec != nil {
			t.targetSpecID = spec.Identifier
			if obj.TypeRef == "SECTION" {
				t.displayText = spec.Identifier + ": " + obj.TitleText
			}
		}
	}
	return t, nil
}

func floatTarget(ctx context.Context, q store.Querier, fromSpecID int64, f *models.SpecFloat, model *typeregistry.Model) (target, error) {
	crossDoc := f.SpecificationRef != fromSpecID
	anchor := f.Anchor
	if anchor == "" {
		anchor = f.Label
	}

	numberStr := ""
	if f.Number != nil {
		numberStr = strconv.FormatInt(*f.Number, 10)
	}
	captionFormat := f.TypeRef
	if ft, ok := model.Floats[f.TypeRef]; ok {
		captionFormat = ft.CaptionFormat
	}
	display := strings.TrimSpace(captionFormat + " " + numberStr)

	t := target{crossDoc: crossDoc, anchor: anchor, displayText: display}
	if crossDoc {
		spec, err := store.GetSpecification(ctx, q, f.SpecificationRef)
		if err != nil {
			return target{}, err
		}
		if spec != nil {
			t.targetSpecID = spec.Identifier
		}
	}
	return t, nil
}

// aliasTargetTexts returns targetText rewritten with every other alias
// (and the canonical identifier) of typeRef substituted for its type
// token, for the 2-part (`type:label`) and 3-part (`scope:type:label`)
// forms. The 1-part bare-label form carries no type token to vary.
func aliasTargetTexts(targetText, typeRef string, model *typeregistry.Model) []string {
	ft, ok := model.Floats[typeRef]
	if !ok {
		return nil
	}
	parts := strings.Split(targetText, ":")
	var idx int
	switch len(parts) {
	case 2:
		idx = 0
	case 3:
		idx = 1
	default:
		return nil
	}

	tokens := append([]string{ft.Identifier}, ft.Aliases...)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		cp := append([]string{}, parts...)
		cp[idx] = tok
		out = append(out, strings.Join(cp, ":"))
	}
	return out
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
