package typeregistry

import (
	"strings"

	"github.com/ternarybob/speccompiler/internal/models"
)

// normalizeAlias lowercases and trims for case-insensitive alias/title
// matching (§4.4 "implicit alias (case-insensitive title match)").
func normalizeAlias(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func matchesIdentifierOrAlias(identifier string, aliases []string, candidate string) bool {
	c := normalizeAlias(candidate)
	if normalizeAlias(identifier) == c {
		return true
	}
	for _, a := range aliases {
		if normalizeAlias(a) == c {
			return true
		}
	}
	return false
}

// ResolveObjectType finds an object type by identifier or alias
// (case-insensitive). ok is false if nothing matches.
func (m *Model) ResolveObjectType(nameOrAlias string) (models.ObjectType, bool) {
	for _, t := range m.Objects {
		if matchesIdentifierOrAlias(t.Identifier, t.Aliases, nameOrAlias) {
			return t, true
		}
	}
	return models.ObjectType{}, false
}

// DefaultObjectType returns the object type marked `is_default`, used
// when a heading's `type:` prefix is absent and no alias matches the
// title (§4.4).
func (m *Model) DefaultObjectType() (models.ObjectType, bool) {
	for _, t := range m.Objects {
		if t.IsDefault {
			return t, true
		}
	}
	return models.ObjectType{}, false
}

// ResolveFloatType finds a float type by identifier or alias.
func (m *Model) ResolveFloatType(nameOrAlias string) (models.FloatType, bool) {
	for _, t := range m.Floats {
		if matchesIdentifierOrAlias(t.Identifier, t.Aliases, nameOrAlias) {
			return t, true
		}
	}
	return models.FloatType{}, false
}

// ResolveViewType finds a view type by its inline_prefix or alias.
func (m *Model) ResolveViewType(prefix string) (models.ViewType, bool) {
	for _, t := range m.Views {
		if matchesIdentifierOrAlias(t.InlinePrefix, t.Aliases, prefix) {
			return t, true
		}
	}
	return models.ViewType{}, false
}

// DefaultSpecificationType returns the specification type marked
// `is_default`.
func (m *Model) DefaultSpecificationType() (models.SpecificationType, bool) {
	for _, t := range m.Specifications {
		if t.IsDefault {
			return t, true
		}
	}
	return models.SpecificationType{}, false
}

// ResolveSpecificationType finds a specification type by identifier or
// by case-insensitive equality (specification types carry no alias list
// in §4.3, so this only checks the identifier).
func (m *Model) ResolveSpecificationType(name string) (models.SpecificationType, bool) {
	for _, t := range m.Specifications {
		if normalizeAlias(t.Identifier) == normalizeAlias(name) {
			return t, true
		}
	}
	return models.SpecificationType{}, false
}

// RelationTypeIsAbstractBase reports whether identifier is named by another
// type's Extends field, i.e. it serves only as an abstract base and must
// be excluded from specificity-scoring candidate pools (§4.7.2).
func (m *Model) RelationTypeIsAbstractBase(identifier string) bool {
	for _, t := range m.Relations {
		if t.Extends == identifier {
			return true
		}
	}
	return false
}

// EffectiveLinkSelector resolves t's inherited link_selector by walking
// its Extends chain when t itself declares none (§4.3 "may inherit
// link_selector").
func (m *Model) EffectiveLinkSelector(t models.RelationType) string {
	seen := map[string]bool{}
	for t.LinkSelector == "" && t.Extends != "" && !seen[t.Identifier] {
		seen[t.Identifier] = true
		parent, ok := m.Relations[t.Extends]
		if !ok {
			break
		}
		t = parent
	}
	return t.LinkSelector
}
