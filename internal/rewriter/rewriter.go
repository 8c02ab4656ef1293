// Package rewriter implements the Link Rewriter (§4.11): it resolves
// every link's selector and body to its final href and display text
// against the resolved relation table, walking every stored object and
// attribute AST in place.
package rewriter

import (
	"context"
	"sort"
	"strings"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

type Rewriter struct {
	Model *typeregistry.Model
}

func New(model *typeregistry.Model) *Rewriter {
	return &Rewriter{Model: model}
}

// Handler returns the pipeline registration for this stage. It has no
// prerequisites within TRANSFORM beyond running after relations are
// resolved, which happens in ANALYZE.
func (rw *Rewriter) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "rewriter",
		Prerequisites: []string{},
		OnTransform:   rw.run,
	}
}

func (rw *Rewriter) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	selectors := rw.selectors()
	for _, doc := range docs {
		if doc.Cached {
			continue
		}
		if err := rw.rewriteSpec(ctx, st, doc.SpecID, selectors); err != nil {
			return err
		}
	}
	return nil
}

func (rw *Rewriter) rewriteSpec(ctx context.Context, st *store.Store, specID int64, selectors []string) error {
	lookup, err := buildLookup(ctx, st, rw.Model, specID)
	if err != nil {
		return err
	}
	q := st.DB()

	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return err
	}
	for i := range objects {
		obj := &objects[i]

		if changed, newAST, err := rw.rewriteAST(obj.AST, obj.ID, selectors, lookup); err != nil {
			return err
		} else if changed {
			if err := store.UpdateSpecObjectAST(ctx, q, obj.ID, newAST); err != nil {
				return err
			}
		}

		if changed, newAST, err := rw.rewriteAST(obj.BodyAST, obj.ID, selectors, lookup); err != nil {
			return err
		} else if changed {
			if err := store.UpdateSpecObjectBodyAST(ctx, q, obj.ID, newAST); err != nil {
				return err
			}
		}

		attrs, err := store.ListAttributeValues(ctx, st, obj.ID, 0)
		if err != nil {
			return err
		}
		for j := range attrs {
			a := &attrs[j]
			if changed, newAST, err := rw.rewriteAST(a.AST, obj.ID, selectors, lookup); err != nil {
				return err
			} else if changed {
				if err := store.UpdateAttributeValueAST(ctx, q, a.ID, newAST); err != nil {
					return err
				}
			}
		}
	}

	floats, err := store.ListSpecFloats(ctx, st, specID)
	if err != nil {
		return err
	}
	for i := range floats {
		f := &floats[i]
		sourceObjectID := derefOrZero(f.ParentObjectID)

		attrs, err := store.ListAttributeValues(ctx, st, 0, f.ID)
		if err != nil {
			return err
		}
		for j := range attrs {
			a := &attrs[j]
			if changed, newAST, err := rw.rewriteAST(a.AST, sourceObjectID, selectors, lookup); err != nil {
				return err
			} else if changed {
				if err := store.UpdateAttributeValueAST(ctx, q, a.ID, newAST); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// rewriteAST decodes astJSON, rewrites every Link node's target and (if
// the link carries no visible text) its display text in place, and
// returns the re-encoded AST when anything changed.
func (rw *Rewriter) rewriteAST(astJSON string, sourceObjectID int64, selectors []string, lookup map[lookupKey]target) (bool, string, error) {
	if astJSON == "" {
		return false, "", nil
	}
	n, err := docast.DecodeJSON(astJSON)
	if err != nil {
		return false, "", err
	}

	changed := false
	n.Walk(func(node *docast.Node) bool {
		if node.Kind != docast.KindLink {
			return true
		}
		selector, ok := matchSelector(node.Target, selectors)
		if !ok {
			return true
		}
		body := strings.TrimPrefix(node.Target, selector)
		body = strings.TrimPrefix(body, ":")

		key := lookupKey{sourceObjectID: sourceObjectID, linkSelector: selector, targetText: body}
		if t, ok := lookup[key]; ok {
			applyTarget(node, t)
		} else {
			applyFallback(node, body)
		}
		changed = true
		return true
	})

	if !changed {
		return false, "", nil
	}
	out, err := n.EncodeJSON()
	if err != nil {
		return false, "", err
	}
	return true, out, nil
}

// applyTarget rewrites a resolved link's target to a same-doc fragment
// or a cross-doc `spec.ext#anchor` reference (the `.ext` sentinel is
// swapped for the real output extension at EMIT), and fills in display
// text for links authored with no visible body (e.g. autolinks).
func applyTarget(node *docast.Node, t target) {
	if t.crossDoc && t.targetSpecID != "" {
		node.Target = t.targetSpecID + ".ext#" + t.anchor
	} else {
		node.Target = "#" + t.anchor
	}
	if docast.Stringify(node) == "" && t.displayText != "" {
		node.Children = []*docast.Node{{Kind: docast.KindText, Text: t.displayText}}
	}
}

// applyFallback rewrites an unresolved link conservatively: the type
// token (if any) is stripped from the body and what remains is treated
// as a same-document anchor (§4.11).
func applyFallback(node *docast.Node, body string) {
	parts := strings.Split(body, ":")
	node.Target = "#" + parts[len(parts)-1]
}

// selectors returns every distinct effective link_selector, longest
// first, matching the Initializer's own matching order (§4.4, §4.5).
func (rw *Rewriter) selectors() []string {
	set := map[string]bool{}
	for _, rt := range rw.Model.Relations {
		if ls := rw.Model.EffectiveLinkSelector(rt); ls != "" {
			set[ls] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func matchSelector(target string, selectors []string) (string, bool) {
	for _, s := range selectors {
		if strings.HasPrefix(target, s) {
			return s, true
		}
	}
	return "", false
}
