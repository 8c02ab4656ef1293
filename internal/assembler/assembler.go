// Package assembler implements the final per-document AST assembly
// (§4.12): it concatenates the specification preamble, every object's
// heading and narrative body, every float's resolved content, and every
// materialized view into a single docast tree in file_seq order.
package assembler

import (
	"context"
	"fmt"
	"sort"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
)

type Assembler struct{}

func New() *Assembler { return &Assembler{} }

// Handler wraps this component's OnEmit callback for registration. It
// runs after every phase that can still mutate AST content: the Link
// Rewriter (final hrefs), the View Materializer (resolved_ast), and the
// External Render Orchestrator (rendered float/view replacements).
func (a *Assembler) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "assembler",
		Prerequisites: []string{"rewriter", "materializer", "render"},
		OnEmit:        a.run,
	}
}

func (a *Assembler) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	for _, doc := range docs {
		if doc.SpecID == 0 {
			continue
		}
		assembled, err := a.Assemble(ctx, st, doc.SpecID)
		if err != nil {
			return fmt.Errorf("assembler: %s: %w", doc.SourcePath, err)
		}
		doc.Doc = assembled
	}
	return nil
}

// seqGroup is one file_seq position's worth of nodes, ordered into the
// final document by seq ascending.
type seqGroup struct {
	seq   int64
	nodes []*docast.Node
}

// Assemble reads every SPEC-IR row belonging to specID and merges their
// AST content into a single document node in file_seq order.
func (a *Assembler) Assemble(ctx context.Context, st *store.Store, specID int64) (*docast.Node, error) {
	var groups []seqGroup

	spec, err := store.GetSpecification(ctx, st.DB(), specID)
	if err != nil {
		return nil, err
	}
	if spec != nil {
		if nodes, err := decodeChildren(spec.HeaderAST); err != nil {
			return nil, err
		} else if len(nodes) > 0 {
			groups = append(groups, seqGroup{seq: -2, nodes: nodes})
		}
		if nodes, err := decodeChildren(spec.BodyAST); err != nil {
			return nil, err
		} else if len(nodes) > 0 {
			groups = append(groups, seqGroup{seq: -1, nodes: nodes})
		}
	}

	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return nil, err
	}
	for i := range objects {
		obj := &objects[i]
		var nodes []*docast.Node
		if obj.AST != "" {
			n, err := docast.DecodeJSON(obj.AST)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, n)
		}
		body, err := decodeChildren(obj.BodyAST)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, body...)
		if len(nodes) > 0 {
			groups = append(groups, seqGroup{seq: obj.FileSeq, nodes: nodes})
		}
	}

	floats, err := store.ListSpecFloats(ctx, st, specID)
	if err != nil {
		return nil, err
	}
	for i := range floats {
		f := &floats[i]
		ast := f.ResolvedAST
		if ast == "" {
			ast = f.RawAST
		}
		if ast == "" {
			continue
		}
		n, err := docast.DecodeJSON(ast)
		if err != nil {
			return nil, err
		}
		groups = append(groups, seqGroup{seq: f.FileSeq, nodes: []*docast.Node{n}})
	}

	views, err := store.ListSpecViews(ctx, st, specID)
	if err != nil {
		return nil, err
	}
	for i := range views {
		v := &views[i]
		ast := v.ResolvedAST
		if ast == "" {
			ast = v.RawAST
		}
		if ast == "" {
			continue
		}
		n, err := docast.DecodeJSON(ast)
		if err != nil {
			return nil, err
		}
		groups = append(groups, seqGroup{seq: v.FileSeq, nodes: []*docast.Node{n}})
	}

	sort.SliceStable(groups, func(i, j int) bool { return groups[i].seq < groups[j].seq })

	out := docast.NewDocument()
	for _, g := range groups {
		for _, n := range g.nodes {
			out.Append(n)
		}
	}
	return out, nil
}

// decodeChildren unwraps a stored wrapper document node (written by the
// Initializer via docast.NewDocument()) back into its individual child
// blocks, so each splices into the assembled tree as its own sibling
// rather than nesting one document inside another.
func decodeChildren(ast string) ([]*docast.Node, error) {
	if ast == "" {
		return nil, nil
	}
	n, err := docast.DecodeJSON(ast)
	if err != nil {
		return nil, err
	}
	if n.Kind == docast.KindDocument {
		return n.Children, nil
	}
	return []*docast.Node{n}, nil
}
