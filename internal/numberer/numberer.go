// Package numberer implements the Float Numberer (§4.8): per-counter-group
// sequential numbering of captioned floats, per specification.
package numberer

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// Numberer assigns sequence numbers to captioned floats.
type Numberer struct {
	Model *typeregistry.Model
}

// New returns a Numberer bound to model.
func New(model *typeregistry.Model) *Numberer {
	return &Numberer{Model: model}
}

// Handler returns this component's registration record for the TRANSFORM
// phase.
func (n *Numberer) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "numberer",
		Prerequisites: []string{},
		OnTransform:   n.run,
	}
}

func (n *Numberer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	groups := n.counterGroups()

	for _, doc := range docs {
		if doc.Cached || doc.SpecID == 0 {
			continue
		}
		if err := n.numberSpecification(ctx, st, doc.SpecID, groups); err != nil {
			return err
		}
	}
	return nil
}

// counterGroups returns, for each distinct counter_group value across the
// registered float types (a type with an unset counter_group defaults to
// its own identifier, §4.8), the list of type_refs sharing that group.
func (n *Numberer) counterGroups() map[string][]string {
	groups := map[string][]string{}
	for identifier, t := range n.Model.Floats {
		group := t.CounterGroup
		if group == "" {
			group = identifier
		}
		groups[group] = append(groups[group], identifier)
	}
	for _, typeRefs := range groups {
		sort.Strings(typeRefs)
	}
	return groups
}

func (n *Numberer) numberSpecification(ctx context.Context, st *store.Store, specID int64, groups map[string][]string) error {
	groupNames := make([]string, 0, len(groups))
	for name := range groups {
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	q := st.DB()
	for _, name := range groupNames {
		floats, err := store.ListSpecFloatsByCounterGroup(ctx, st, specID, groups[name])
		if err != nil {
			return fmt.Errorf("failed to list floats for counter group %s: %w", name, err)
		}

		seq := int64(0)
		for _, f := range floats {
			if f.Caption == "" {
				continue
			}
			seq++
			if err := store.UpdateSpecFloatNumber(ctx, q, f.ID, seq); err != nil {
				return fmt.Errorf("failed to number float %d: %w", f.ID, err)
			}
		}
	}
	return nil
}
