package analyzer

import (
	"sort"

	"github.com/ternarybob/speccompiler/internal/models"
)

// scoreTypes implements §4.7.2. It scores every relation type against r
// over four dimensions, eliminates constraint mismatches, excludes
// extends-only base types, and returns the winning identifier. ok is
// false when no type survives elimination.
func (a *Analyzer) scoreTypes(r *models.SpecRelation, sourceTypeRef, targetTypeRef string) (winner string, ambiguous bool, ok bool) {
	type candidate struct {
		identifier string
		score      int
	}

	var survivors []candidate
	for identifier, t := range a.Model.Relations {
		if a.Model.RelationTypeIsAbstractBase(identifier) {
			continue
		}
		selector := a.Model.EffectiveLinkSelector(t)
		if eliminated(t, selector, r, sourceTypeRef, targetTypeRef) {
			continue
		}
		survivors = append(survivors, candidate{identifier: identifier, score: score(t, selector, r, sourceTypeRef, targetTypeRef)})
	}

	if len(survivors) == 0 {
		return "", false, false
	}

	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].score != survivors[j].score {
			return survivors[i].score > survivors[j].score
		}
		return survivors[i].identifier < survivors[j].identifier
	})

	best := survivors[0].score
	tied := 0
	for _, c := range survivors {
		if c.score == best {
			tied++
		}
	}
	return survivors[0].identifier, tied > 1, true
}

// eliminated reports whether t's non-null constraints conflict with the
// observed relation r (a constraint mismatch eliminates the type from
// the candidate set; a null constraint is a wildcard and never
// eliminates, §4.7.2). selector is t's effective (Extends-resolved)
// link_selector.
func eliminated(t models.RelationType, selector string, r *models.SpecRelation, sourceTypeRef, targetTypeRef string) bool {
	if selector != "" && selector != r.LinkSelector {
		return true
	}
	if t.SourceAttribute != "" {
		if r.SourceAttribute == nil || *r.SourceAttribute != t.SourceAttribute {
			return true
		}
	}
	if t.SourceTypeRef != "" && t.SourceTypeRef != sourceTypeRef {
		return true
	}
	if t.TargetTypeRef != "" && t.TargetTypeRef != targetTypeRef {
		return true
	}
	return false
}

// score computes d_selector + d_source_attr + d_source_type +
// d_target_type for one surviving type (§4.7.2).
func score(t models.RelationType, selector string, r *models.SpecRelation, sourceTypeRef, targetTypeRef string) int {
	total := 0
	if selector != "" && selector == r.LinkSelector {
		total++
	}
	if t.SourceAttribute != "" && r.SourceAttribute != nil && *r.SourceAttribute == t.SourceAttribute {
		total++
	}
	if t.SourceTypeRef != "" && t.SourceTypeRef == sourceTypeRef {
		total++
	}
	if t.TargetTypeRef != "" && t.TargetTypeRef == targetTypeRef {
		total++
	}
	return total
}
