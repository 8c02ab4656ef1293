package transform

import (
	"context"
	"fmt"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// blockFunc produces a Document AST block from a float's raw content and
// parsed attribute map (§4.10). Internal transformers are synchronous and
// run inline in TRANSFORM, unlike the External Render Orchestrator's
// subprocess tasks.
type blockFunc func(rawContent string, attrs map[string]string) (*docast.Node, error)

// Transformer dispatches internal (non-externally-rendered) float
// transforms by type_ref.
type Transformer struct {
	Model  *typeregistry.Model
	byType map[string]blockFunc
}

// New returns a Transformer with the built-in TABLE/LISTING/FIGURE
// transforms registered.
func New(model *typeregistry.Model) *Transformer {
	t := &Transformer{Model: model, byType: map[string]blockFunc{}}
	t.byType["TABLE"] = func(raw string, attrs map[string]string) (*docast.Node, error) {
		return transformTable(raw, attrs)
	}
	t.byType["LISTING"] = transformListing
	t.byType["FIGURE"] = transformFigure
	return t
}

// Register adds or overrides the transform for typeRef. Exposed so a
// project overlay's custom float types (§4.3) can plug in their own
// internal transform without forking this package.
func (t *Transformer) Register(typeRef string, fn func(rawContent string, attrs map[string]string) (*docast.Node, error)) {
	t.byType[typeRef] = fn
}

// Handler returns this component's registration record for the
// TRANSFORM phase. It has no prerequisites on the Numberer: numbering
// only touches the `number` column, which internal transforms don't
// read.
func (t *Transformer) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "transform",
		Prerequisites: []string{},
		OnTransform:   t.run,
	}
}

func (t *Transformer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	q := st.DB()
	for _, doc := range docs {
		if doc.Cached || doc.SpecID == 0 {
			continue
		}
		floats, err := store.ListSpecFloats(ctx, st, doc.SpecID)
		if err != nil {
			return fmt.Errorf("failed to list floats for spec %d: %w", doc.SpecID, err)
		}
		for _, f := range floats {
			if err := t.transformOne(ctx, q, f, sink); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transformer) transformOne(ctx context.Context, q store.Querier, f models.SpecFloat, sink *diagnostics.Sink) error {
	ft, ok := t.Model.Floats[f.TypeRef]
	if !ok || ft.NeedsExternalRender {
		return nil
	}
	fn, ok := t.byType[f.TypeRef]
	if !ok {
		return nil
	}

	attrs, err := decodePandocAttributes(f.PandocAttributes)
	if err != nil {
		return fmt.Errorf("failed to decode attributes for float %d: %w", f.ID, err)
	}

	block, err := fn(f.RawContent, attrs)
	if err != nil {
		sink.Emit(diagnostics.KeyFloatRenderFailure,
			fmt.Sprintf("internal transform failed for float %s: %v", f.Label, err), f.FromFile, f.StartLine)
		return nil
	}

	blockJSON, err := block.EncodeJSON()
	if err != nil {
		return fmt.Errorf("failed to encode transformed block for float %d: %w", f.ID, err)
	}
	return store.UpdateSpecFloatResolvedAST(ctx, q, f.ID, blockJSON)
}

func transformListing(raw string, attrs map[string]string) (*docast.Node, error) {
	return &docast.Node{Kind: docast.KindCodeBlock, Text: raw, Lang: attrs["lang"]}, nil
}

func transformFigure(raw string, attrs map[string]string) (*docast.Node, error) {
	target := attrs["src"]
	if target == "" {
		target = firstNonEmptyLine(raw)
	}
	img := &docast.Node{Kind: docast.KindImage, Target: target, Title: attrs["caption"]}
	return &docast.Node{Kind: docast.KindParagraph, Children: []*docast.Node{img}}, nil
}

func firstNonEmptyLine(raw string) string {
	for _, line := range splitLines(raw) {
		if line != "" {
			return line
		}
	}
	return ""
}
