// Package materializer implements the View Materializer (§4.12): it
// pre-computes the lazy content of TOC, LOF/LOT (counter-group), and
// abbreviation-list views, writing both a structured `resolved_data`
// payload and a directly assemblable `resolved_ast` tree.
package materializer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

type Materializer struct {
	Model *typeregistry.Model
}

func New(model *typeregistry.Model) *Materializer {
	return &Materializer{Model: model}
}

// Handler runs after the Numberer so LOF/LOT entries see final float
// numbers.
func (m *Materializer) Handler() pipeline.Handler {
	return pipeline.Handler{
		Name:          "materializer",
		Prerequisites: []string{"numberer"},
		OnTransform:   m.run,
	}
}

func (m *Materializer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	for _, doc := range docs {
		if doc.Cached || doc.SpecID == 0 {
			continue
		}
		if err := m.materializeSpecification(ctx, st, doc.SpecID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Materializer) materializeSpecification(ctx context.Context, st *store.Store, specID int64) error {
	views, err := store.ListSpecViews(ctx, st, specID)
	if err != nil {
		return err
	}
	q := st.DB()

	for i := range views {
		v := &views[i]
		vt, ok := m.Model.Views[v.TypeRef]
		if !ok {
			continue
		}

		var data string
		var ast *docast.Node
		switch vt.MaterializerType {
		case models.MaterializerTOC:
			data, ast, err = m.materializeTOC(ctx, st, specID, v)
		case models.MaterializerLOF:
			data, ast, err = m.materializeCounterGroupList(ctx, st, specID, vt)
		case models.MaterializerAbbrevList:
			data, ast, err = m.materializeAbbrevList(ctx, st, specID)
		case models.MaterializerCustom:
			if vt.NeedsExternalRender {
				// Handled by the External Render Orchestrator instead
				// (e.g. INLINE_MATH), not this component.
				continue
			}
			data, ast, err = materializeSilentDefinition()
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to materialize view %d (%s): %w", v.ID, v.TypeRef, err)
		}

		astJSON, err := ast.EncodeJSON()
		if err != nil {
			return err
		}
		if err := store.UpdateSpecViewResolvedData(ctx, q, v.ID, data); err != nil {
			return err
		}
		if err := store.UpdateSpecViewResolvedAST(ctx, q, v.ID, astJSON); err != nil {
			return err
		}
	}
	return nil
}

type tocEntry struct {
	PID   string `json:"pid"`
	Title string `json:"title"`
	Level int    `json:"level"`
}

// materializeTOC lists every object in file_seq order, filtered by the
// view's `max level` (the raw_content value parsed as an integer; a
// non-numeric or empty value means no level filter, §4.12).
func (m *Materializer) materializeTOC(ctx context.Context, st *store.Store, specID int64, v *models.SpecView) (string, *docast.Node, error) {
	maxLevel, hasMax := parseMaxLevel(v.RawContent)

	objects, err := store.ListSpecObjects(ctx, st, specID)
	if err != nil {
		return "", nil, err
	}

	entries := make([]tocEntry, 0, len(objects))
	items := make([]listLinkItem, 0, len(objects))
	for _, o := range objects {
		if hasMax && o.Level > maxLevel {
			continue
		}
		entries = append(entries, tocEntry{PID: o.PID, Title: o.TitleText, Level: o.Level})
		items = append(items, listLinkItem{anchor: o.PID, text: o.TitleText})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", nil, err
	}
	return string(data), buildLinkList(items), nil
}

type counterEntry struct {
	PID     string `json:"pid"`
	Number  int64  `json:"number"`
	Caption string `json:"caption"`
}

// materializeCounterGroupList lists captioned floats sharing vt's
// counter_group (an empty counter_group defaults to the view's own
// identifier, mirroring the Numberer's fallback for float types, §4.8).
func (m *Materializer) materializeCounterGroupList(ctx context.Context, st *store.Store, specID int64, vt models.ViewType) (string, *docast.Node, error) {
	group := vt.CounterGroup
	if group == "" {
		group = vt.Identifier
	}

	var typeRefs []string
	for identifier, ft := range m.Model.Floats {
		ftGroup := ft.CounterGroup
		if ftGroup == "" {
			ftGroup = identifier
		}
		if ftGroup == group {
			typeRefs = append(typeRefs, identifier)
		}
	}
	sort.Strings(typeRefs)

	floats, err := store.ListSpecFloatsByCounterGroup(ctx, st, specID, typeRefs)
	if err != nil {
		return "", nil, err
	}

	var captionFormat string
	if len(typeRefs) > 0 {
		if ft, ok := m.Model.Floats[typeRefs[0]]; ok {
			captionFormat = ft.CaptionFormat
		}
	}

	entries := make([]counterEntry, 0, len(floats))
	items := make([]listLinkItem, 0, len(floats))
	for _, f := range floats {
		if f.Caption == "" || f.Number == nil {
			continue
		}
		entries = append(entries, counterEntry{PID: anchorOrLabel(f.Anchor, f.Label), Number: *f.Number, Caption: f.Caption})
		label := fmt.Sprintf("%s %d: %s", captionFormat, *f.Number, f.Caption)
		items = append(items, listLinkItem{anchor: anchorOrLabel(f.Anchor, f.Label), text: label})
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return "", nil, err
	}
	return string(data), buildLinkList(items), nil
}

type abbrevEntry struct {
	Abbrev  string `json:"abbrev"`
	Meaning string `json:"meaning"`
}

// materializeAbbrevList gathers every ABBREV-typed view's raw_content
// (`"TERM = meaning"`) in the specification into the distinct set of
// pairs, sorted by upper-case abbreviation (§4.12).
func (m *Materializer) materializeAbbrevList(ctx context.Context, st *store.Store, specID int64) (string, *docast.Node, error) {
	views, err := store.ListSpecViews(ctx, st, specID)
	if err != nil {
		return "", nil, err
	}

	seen := map[abbrevEntry]bool{}
	var entries []abbrevEntry
	for _, v := range views {
		vt, ok := m.Model.Views[v.TypeRef]
		if !ok || vt.MaterializerType != models.MaterializerCustom || vt.Identifier != "ABBREV" {
			continue
		}
		abbrev, meaning, ok := splitAbbrevDefinition(v.RawContent)
		if !ok {
			continue
		}
		e := abbrevEntry{Abbrev: abbrev, Meaning: meaning}
		if !seen[e] {
			seen[e] = true
			entries = append(entries, e)
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToUpper(entries[i].Abbrev) < strings.ToUpper(entries[j].Abbrev)
	})

	data, err := json.Marshal(entries)
	if err != nil {
		return "", nil, err
	}

	list := &docast.Node{Kind: docast.KindList}
	for _, e := range entries {
		para := &docast.Node{Kind: docast.KindParagraph, Children: []*docast.Node{
			{Kind: docast.KindStrong, Children: []*docast.Node{{Kind: docast.KindText, Text: e.Abbrev}}},
			{Kind: docast.KindText, Text: " — " + e.Meaning},
		}}
		list.Children = append(list.Children, &docast.Node{Kind: docast.KindListItem, Children: []*docast.Node{para}})
	}
	return string(data), list, nil
}

// materializeSilentDefinition is the resolved_ast for a view whose
// occurrence carries no visible inline output of its own (an individual
// ABBREV definition; its content is consumed by ABBREV_LIST instead).
func materializeSilentDefinition() (string, *docast.Node, error) {
	return "{}", &docast.Node{Kind: docast.KindText}, nil
}

func splitAbbrevDefinition(raw string) (abbrev, meaning string, ok bool) {
	idx := strings.Index(raw, "=")
	if idx < 0 {
		return "", "", false
	}
	abbrev = strings.TrimSpace(raw[:idx])
	meaning = strings.TrimSpace(raw[idx+1:])
	if abbrev == "" || meaning == "" {
		return "", "", false
	}
	return abbrev, meaning, true
}

func parseMaxLevel(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

func anchorOrLabel(anchor, label string) string {
	if anchor != "" {
		return anchor
	}
	return label
}

type listLinkItem struct {
	anchor string
	text   string
}

func buildLinkList(items []listLinkItem) *docast.Node {
	list := &docast.Node{Kind: docast.KindList}
	for _, it := range items {
		link := &docast.Node{Kind: docast.KindLink, Target: "#" + it.anchor, Children: []*docast.Node{{Kind: docast.KindText, Text: it.text}}}
		para := &docast.Node{Kind: docast.KindParagraph, Children: []*docast.Node{link}}
		list.Children = append(list.Children, &docast.Node{Kind: docast.KindListItem, Children: []*docast.Node{para}})
	}
	return list
}
