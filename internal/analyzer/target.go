package analyzer

import (
	"context"
	"strings"

	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/store"
)

// resolveTarget implements §4.7.1. It returns the winning match, whether
// multiple hits tied at the tightest scope searched, and any query
// error. A nil match with no error means the relation stays unresolved.
func (a *Analyzer) resolveTarget(ctx context.Context, q store.Querier, r *models.SpecRelation) (*store.TargetMatch, bool, error) {
	if r.LinkSelector == "@" || strings.HasPrefix(r.LinkSelector, "@") {
		return a.resolvePID(ctx, q, r.SpecificationRef, r.TargetText)
	}
	return a.resolveLabel(ctx, q, r.SpecificationRef, r.TargetText)
}

// resolvePID handles the `@`-family case: target_text is a PID, tried
// same-specification first and then globally.
func (a *Analyzer) resolvePID(ctx context.Context, q store.Querier, specID int64, pid string) (*store.TargetMatch, bool, error) {
	same := specID
	matches, err := store.FindObjectByPID(ctx, q, &same, pid)
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		return &matches[0], len(matches) > 1, nil
	}

	matches, err = store.FindObjectByPID(ctx, q, nil, pid)
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	return &matches[0], len(matches) > 1, nil
}

// resolveLabel handles the `#` case. target_text is one of: `label`,
// `type:label`, `scope_pid:type:label`, or `scope_pid:label`. A 2-part
// form is disambiguated by trying the first part as a scope PID first;
// if that resolves to an object, it is treated as `scope_pid:label`,
// otherwise as `type:label`.
func (a *Analyzer) resolveLabel(ctx context.Context, q store.Querier, specID int64, targetText string) (*store.TargetMatch, bool, error) {
	parts := strings.Split(targetText, ":")

	switch len(parts) {
	case 1:
		return a.searchByLabel(ctx, q, specID, "", parts[0])

	case 2:
		if scopeID, found, err := a.tryScope(ctx, q, specID, parts[0]); err != nil {
			return nil, false, err
		} else if found {
			return a.searchInScope(ctx, q, scopeID, "", parts[1])
		}
		return a.searchByLabel(ctx, q, specID, parts[0], parts[1])

	case 3:
		scopeID, found, err := a.tryScope(ctx, q, specID, parts[0])
		if err != nil {
			return nil, false, err
		}
		if !found {
			// scope_pid did not resolve to any object; the relation stays
			// unresolved rather than silently falling back (§4.7.1 requires
			// a scope object to search within).
			return nil, false, nil
		}
		return a.searchInScope(ctx, q, scopeID, parts[1], parts[2])

	default:
		return nil, false, nil
	}
}

func (a *Analyzer) tryScope(ctx context.Context, q store.Querier, specID int64, scopePID string) (int64, bool, error) {
	same := specID
	matches, err := store.FindObjectByPID(ctx, q, &same, scopePID)
	if err != nil {
		return 0, false, err
	}
	if len(matches) == 0 {
		matches, err = store.FindObjectByPID(ctx, q, nil, scopePID)
		if err != nil {
			return 0, false, err
		}
	}
	if len(matches) == 0 || matches[0].ObjectID == nil {
		return 0, false, nil
	}
	return *matches[0].ObjectID, true, nil
}

func (a *Analyzer) searchInScope(ctx context.Context, q store.Querier, scopeObjectID int64, typeToken, label string) (*store.TargetMatch, bool, error) {
	matches, err := store.FindFloatByLabelInScope(ctx, q, scopeObjectID, a.canonicalTypeRef(typeToken), label)
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	return &matches[0], len(matches) > 1, nil
}

// searchByLabel searches the same specification first, falling back to a
// global search on a miss (§4.7.1 "on miss, search globally").
func (a *Analyzer) searchByLabel(ctx context.Context, q store.Querier, specID int64, typeToken, label string) (*store.TargetMatch, bool, error) {
	typeRef := a.canonicalTypeRef(typeToken)
	same := specID
	matches, err := store.FindByLabelGlobal(ctx, q, &same, typeRef, label)
	if err != nil {
		return nil, false, err
	}
	if len(matches) > 0 {
		return &matches[0], len(matches) > 1, nil
	}

	matches, err = store.FindByLabelGlobal(ctx, q, nil, typeRef, label)
	if err != nil {
		return nil, false, err
	}
	if len(matches) == 0 {
		return nil, false, nil
	}
	return &matches[0], len(matches) > 1, nil
}

// canonicalTypeRef resolves a `type:label` token to a type registry
// identifier by the same case-insensitive alias rule the Initializer
// uses for headings and info strings (§4.4). An empty token stays empty
// (no type filter); an unresolved token is passed through unchanged so a
// literal identifier still matches.
func (a *Analyzer) canonicalTypeRef(token string) string {
	if token == "" {
		return ""
	}
	if t, ok := a.Model.ResolveFloatType(token); ok {
		return t.Identifier
	}
	if t, ok := a.Model.ResolveObjectType(token); ok {
		return t.Identifier
	}
	return token
}
