package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

func strPtr(s string) *string { return &s }

func TestScoreTypes_ConstraintEliminationAndSpecificity(t *testing.T) {
	model := &typeregistry.Model{
		Relations: map[string]models.RelationType{
			"PID_REF": {
				Identifier:   "PID_REF",
				LinkSelector: "@",
			},
			"PID_REF_HLR": {
				Identifier:    "PID_REF_HLR",
				Extends:       "PID_REF",
				LinkSelector:  "@",
				TargetTypeRef: "HLR",
			},
			"LABEL_REF": {
				Identifier:   "LABEL_REF",
				LinkSelector: "#",
			},
		},
	}
	a := New(model)

	r := &models.SpecRelation{LinkSelector: "@"}
	winner, ambiguous, ok := a.scoreTypes(r, "SECTION", "HLR")
	require := assert.New(t)
	require.True(ok)
	require.False(ambiguous)
	require.Equal("PID_REF_HLR", winner, "more specific target_type_ref constraint should win over the abstract base")
}

func TestScoreTypes_ExcludesAbstractBase(t *testing.T) {
	model := &typeregistry.Model{
		Relations: map[string]models.RelationType{
			"PID_REF": {
				Identifier:   "PID_REF",
				LinkSelector: "@",
			},
			"PID_REF_HLR": {
				Identifier:    "PID_REF_HLR",
				Extends:       "PID_REF",
				LinkSelector:  "@",
				TargetTypeRef: "HLR",
			},
		},
	}
	a := New(model)

	// A target type that does NOT match PID_REF_HLR's constraint leaves
	// only PID_REF as a structural candidate, but PID_REF is excluded
	// because PID_REF_HLR extends it (§4.7.2 "abstract bases").
	r := &models.SpecRelation{LinkSelector: "@"}
	_, _, ok := a.scoreTypes(r, "SECTION", "LLR")
	assert.False(t, ok, "relation type constrained to HLR should not match an LLR target, and the base PID_REF must stay excluded")
}

func TestScoreTypes_TieBreaksLexicographically(t *testing.T) {
	model := &typeregistry.Model{
		Relations: map[string]models.RelationType{
			"ZETA_REF": {Identifier: "ZETA_REF", LinkSelector: "#"},
			"ALPHA_REF": {Identifier: "ALPHA_REF", LinkSelector: "#"},
		},
	}
	a := New(model)

	r := &models.SpecRelation{LinkSelector: "#"}
	winner, ambiguous, ok := a.scoreTypes(r, "", "")
	assert.True(t, ok)
	assert.True(t, ambiguous)
	assert.Equal(t, "ALPHA_REF", winner)
}

func TestScoreTypes_SourceAttributeConstraint(t *testing.T) {
	model := &typeregistry.Model{
		Relations: map[string]models.RelationType{
			"DERIVED_FROM": {Identifier: "DERIVED_FROM", LinkSelector: "@", SourceAttribute: "derived_from"},
			"GENERIC_REF":  {Identifier: "GENERIC_REF", LinkSelector: "@"},
		},
	}
	a := New(model)

	r := &models.SpecRelation{LinkSelector: "@", SourceAttribute: strPtr("derived_from")}
	winner, ambiguous, ok := a.scoreTypes(r, "", "")
	assert.True(t, ok)
	assert.False(t, ambiguous)
	assert.Equal(t, "DERIVED_FROM", winner)

	r2 := &models.SpecRelation{LinkSelector: "@", SourceAttribute: strPtr("rationale")}
	winner2, _, ok2 := a.scoreTypes(r2, "", "")
	assert.True(t, ok2)
	assert.Equal(t, "GENERIC_REF", winner2, "mismatched source_attribute constraint eliminates DERIVED_FROM")
}
