package initializer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/speccompiler/internal/diagnostics"
	"github.com/ternarybob/speccompiler/internal/docast"
	"github.com/ternarybob/speccompiler/internal/hasher"
	"github.com/ternarybob/speccompiler/internal/models"
	"github.com/ternarybob/speccompiler/internal/pipeline"
	"github.com/ternarybob/speccompiler/internal/store"
	"github.com/ternarybob/speccompiler/internal/typeregistry"
)

// Initializer implements the INITIALIZE phase (§4.5): it binds a dirty
// document's parsed AST into Specification, SpecObject, AttributeValue,
// SpecFloat, SpecView, and unresolved SpecRelation rows.
type Initializer struct {
	Model *typeregistry.Model
}

// New builds an Initializer bound to the active type registry model.
func New(model *typeregistry.Model) *Initializer {
	return &Initializer{Model: model}
}

// Handler wraps this component's OnInitialize callback for registration.
// It declares no prerequisites: every other handler's INITIALIZE work
// (if any) depends on the rows this one produces.
func (ini *Initializer) Handler() pipeline.Handler {
	return pipeline.Handler{Name: "initializer", Prerequisites: []string{}, OnInitialize: ini.run}
}

func (ini *Initializer) run(ctx context.Context, st *store.Store, docs []*pipeline.Context, sink *diagnostics.Sink) error {
	for _, doc := range docs {
		if doc.Cached {
			continue
		}
		if err := ini.initializeDocument(ctx, st, doc, sink); err != nil {
			return fmt.Errorf("initializer: %s: %w", doc.SourcePath, err)
		}
	}
	return nil
}

// initializeDocument deletes any existing content for a previously-seen
// specification and rebuilds it from doc.Doc inside a single transaction
// (§4.5 step 1, §8 invariant: a dirty rebuild never leaves partial rows).
func (ini *Initializer) initializeDocument(ctx context.Context, st *store.Store, doc *pipeline.Context, sink *diagnostics.Sink) error {
	identifier := identifierFor(doc.SourcePath)

	existing, err := st.FindSpecificationByIdentifier(ctx, identifier)
	if err != nil {
		return fmt.Errorf("failed to look up existing specification: %w", err)
	}

	tx, err := st.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	q := tx.Querier()

	if existing != nil {
		if err := store.DeleteSpecificationContent(ctx, q, existing.ID); err != nil {
			return err
		}
	}

	w := &walker{
		ini:       ini,
		ctx:       ctx,
		q:         q,
		doc:       doc,
		sink:      sink,
		localSeq:   map[string]int64{},
		selectors:  ini.selectors(),
		bodyBlocks: map[int64][]*docast.Node{},
	}
	if err := w.walkDocument(identifier); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	doc.SpecID = w.specID
	return nil
}

func identifierFor(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// selectors returns every distinct effective link_selector across the
// relation type registry, longest first so that overlapping prefixes
// (e.g. `@` and `@cite`) resolve to the most specific match (§4.4).
func (ini *Initializer) selectors() []string {
	set := map[string]bool{}
	for _, rt := range ini.Model.Relations {
		if ls := ini.Model.EffectiveLinkSelector(rt); ls != "" {
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

func (ini *Initializer) resolveObjectType(h headingTitle) (models.ObjectType, bool) {
	if h.TypeRef != "" {
		if t, ok := ini.Model.ResolveObjectType(h.TypeRef); ok {
			return t, true
		}
	}
	if t, ok := ini.Model.ResolveObjectType(h.Title); ok {
		return t, true
	}
	return ini.Model.DefaultObjectType()
}

func (ini *Initializer) resolveSpecificationType(h headingTitle) (models.SpecificationType, bool) {
	if h.TypeRef != "" {
		if t, ok := ini.Model.ResolveSpecificationType(h.TypeRef); ok {
			return t, true
		}
	}
	return ini.Model.DefaultSpecificationType()
}

// synthesizePID builds an auto-generated PID for a heading with no
// explicit `@PID` (§4.5 "Auto-PID synthesis"). A composite type's
// pid_format nests under the parent object's PID (e.g. SECTION's
// `%s-sec%d` chains "sec1-sec2"); a non-composite type's pid_format
// binds `%s` to its own pid_prefix instead, flat within the
// specification (e.g. HLR's `%s-%03d` gives "HLR-001").
func synthesizePID(t models.ObjectType, parentPID string, seq int64) string {
	if t.PIDFormat == "" {
		if parentPID != "" {
			return fmt.Sprintf("%s.%d", parentPID, seq)
		}
		return fmt.Sprintf("%s%d", t.PIDPrefix, seq)
	}
	if !t.IsComposite {
		return fmt.Sprintf(t.PIDFormat, t.PIDPrefix, seq)
	}
	if parentPID != "" {
		return fmt.Sprintf(t.PIDFormat, parentPID, seq)
	}
	flat := strings.Replace(t.PIDFormat, "%s-", "", 1)
	flat = strings.Replace(flat, "%s", "", 1)
	return fmt.Sprintf(flat, seq)
}

// objectLabel derives a heading's default anchor label (§4.5 step 7)
// when no explicit label is otherwise available: `type:title-slug`.
func objectLabel(typeRef, title string) string {
	return strings.ToLower(typeRef) + ":" + titleSlug(title)
}

// walker holds the mutable state of one document's top-to-bottom AST
// walk: the stack of currently open headings (for attribute/float/view
// ownership and hierarchical PID nesting), per-(parent,type) auto-PID
// counters, and the resolved selector set.
type walker struct {
	ini  *Initializer
	ctx  context.Context
	q    store.Querier
	doc  *pipeline.Context
	sink *diagnostics.Sink

	specID int64

	objStack []objFrame

	localSeq  map[string]int64
	selectors []string

	// bodyBlocks accumulates ordinary narrative blocks (paragraphs,
	// lists, tables, anything not a heading/blockquote/code block)
	// keyed by the currently open object's id, so they can be flushed
	// into SpecObject.BodyAST once the whole document has been walked.
	// preambleBlocks holds the same content seen before any heading
	// opens, flushed onto the specification itself.
	bodyBlocks     map[int64][]*docast.Node
	preambleBlocks []*docast.Node
}

// objFrame is one open heading on the walker's ancestor stack. A heading
// at level L closes every frame with level >= L before opening its own
// (§4.5 step 2: nesting follows heading level, not document order alone).
type objFrame struct {
	level   int
	id      int64
	pid     string
	typeRef string
}

func (w *walker) topObject() (objFrame, bool) {
	if len(w.objStack) == 0 {
		return objFrame{}, false
	}
	return w.objStack[len(w.objStack)-1], true
}

func (w *walker) walkDocument(identifier string) error {
	children := w.doc.Doc.Children

	specTitle := headingTitle{Title: identifier}
	for _, n := range children {
		if n.Kind == docast.KindHeading && n.Level == 1 {
			specTitle = parseHeading(docast.Stringify(n))
			break
		}
	}

	specType, _ := w.ini.resolveSpecificationType(specTitle)
	spec := &models.Specification{
		Identifier: identifier,
		RootPath:   w.doc.SourcePath,
		LongName:   specTitle.Title,
		TypeRef:    specType.Identifier,
		PID:        specTitle.PID,
	}
	id, err := store.InsertSpecification(w.ctx, w.q, spec)
	if err != nil {
		return fmt.Errorf("failed to insert specification: %w", err)
	}
	w.specID = id

	for _, n := range children {
		if err := w.visitTopLevel(n); err != nil {
			return err
		}
	}
	return w.flushBodyBlocks()
}

// flushBodyBlocks persists the accumulated per-object and preamble
// narrative content, wrapping each object's blocks as a single document
// node so the Assembler can later splice them in as sibling blocks
// immediately following their owning heading.
func (w *walker) flushBodyBlocks() error {
	for objID, blocks := range w.bodyBlocks {
		wrapper := docast.NewDocument()
		wrapper.Children = blocks
		astJSON, err := wrapper.EncodeJSON()
		if err != nil {
			return err
		}
		if err := store.UpdateSpecObjectBodyAST(w.ctx, w.q, objID, astJSON); err != nil {
			return err
		}
	}

	if len(w.preambleBlocks) > 0 {
		wrapper := docast.NewDocument()
		wrapper.Children = w.preambleBlocks
		astJSON, err := wrapper.EncodeJSON()
		if err != nil {
			return err
		}
		if err := store.UpdateSpecificationAST(w.ctx, w.q, w.specID, "", astJSON); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) visitTopLevel(n *docast.Node) error {
	switch n.Kind {
	case docast.KindHeading:
		if n.Level <= 1 {
			return nil
		}
		return w.bindObject(n)
	case docast.KindBlockquote:
		return w.bindAttribute(n)
	case docast.KindCodeBlock:
		return w.bindFloatOrView(n)
	default:
		w.captureBodyBlock(n)
		return w.harvestInlines(n)
	}
}

// captureBodyBlock retains an ordinary block's own node (not just its
// harvested inline relations/views) so it survives into the assembled
// output instead of being dropped. It is owned by whichever object is
// currently open, or by the specification preamble if none is.
func (w *walker) captureBodyBlock(n *docast.Node) {
	if top, ok := w.topObject(); ok {
		w.bodyBlocks[top.id] = append(w.bodyBlocks[top.id], n)
		return
	}
	w.preambleBlocks = append(w.preambleBlocks, n)
}

func (w *walker) harvestInlines(n *docast.Node) error {
	var err error
	n.Walk(func(node *docast.Node) bool {
		if err != nil {
			return false
		}
		switch node.Kind {
		case docast.KindLink:
			err = w.bindRelation(node)
		case docast.KindCodeSpan:
			err = w.bindInlineView(node)
		}
		return true
	})
	return err
}

func (w *walker) nextLocalSeq(typeRef string, parentID int64) int64 {
	key := fmt.Sprintf("%d:%s", parentID, typeRef)
	w.localSeq[key]++
	return w.localSeq[key]
}

// bindObject binds an H2+ heading into a SpecObject row (§4.5 step 2).
func (w *walker) bindObject(n *docast.Node) error {
	h := parseHeading(docast.Stringify(n))
	t, ok := w.ini.resolveObjectType(h)
	if !ok {
		w.sink.Raw(diagnostics.LevelError, fmt.Sprintf("no object type resolves heading %q", h.Title), w.doc.SourcePath, n.Line)
		return nil
	}

	for len(w.objStack) > 0 && w.objStack[len(w.objStack)-1].level >= n.Level {
		w.objStack = w.objStack[:len(w.objStack)-1]
	}
	parent, _ := w.topObject()

	pid := h.PID
	var autoSeq int64
	autoGen := pid == ""
	if autoGen {
		autoSeq = w.nextLocalSeq(t.Identifier, parent.id)
		pid = synthesizePID(t, parent.pid, autoSeq)
	}

	astJSON, err := n.EncodeJSON()
	if err != nil {
		return err
	}

	obj := &models.SpecObject{
		ContentSHA:       hasher.String(astJSON),
		SpecificationRef: w.specID,
		TypeRef:          t.Identifier,
		FromFile:         w.doc.SourcePath,
		FileSeq:          w.doc.NextFileSeq(),
		PID:              pid,
		PIDPrefix:        t.PIDPrefix,
		PIDSequence:      autoSeq,
		PIDAutoGenerated: autoGen,
		TitleText:        h.Title,
		Label:            objectLabel(t.Identifier, h.Title),
		Level:            n.Level,
		StartLine:        n.Line,
		EndLine:          n.Line,
		AST:              astJSON,
	}

	id, err := store.InsertSpecObject(w.ctx, w.q, obj)
	if err != nil {
		return err
	}

	w.objStack = append(w.objStack, objFrame{level: n.Level, id: id, pid: pid, typeRef: t.Identifier})
	return nil
}

// bindAttribute binds a blockquote's `key: value` line onto the
// currently open object (§4.5 step 3). A blockquote appearing before any
// heading has no owning object and is not an attribute; it is left as
// ordinary document content.
func (w *walker) bindAttribute(n *docast.Node) error {
	top, ok := w.topObject()
	if !ok {
		return nil
	}

	name, value, ok := parseAttributeLine(docast.Stringify(n))
	if !ok {
		return nil
	}

	dt := models.DatatypeString
	var enumValues []string
	if def, ok := w.attributeDef(name); ok {
		dt = def.Datatype
		enumValues = def.EnumValues
	}

	a, castErr := castValue(dt, value, enumValues)
	a.OwnerObjectID = top.id
	a.Name = name
	if astJSON, err := n.EncodeJSON(); err == nil {
		a.AST = astJSON
	}
	if castErr != nil {
		w.sink.Emit(diagnostics.KeyObjectCastFailures, castErr.Error(), w.doc.SourcePath, n.Line)
	}

	_, err := store.InsertAttributeValue(w.ctx, w.q, &a)
	return err
}

func (w *walker) attributeDef(name string) (models.AttributeTypeDef, bool) {
	top, ok := w.topObject()
	if !ok {
		return models.AttributeTypeDef{}, false
	}
	t, ok := w.ini.Model.Objects[top.typeRef]
	if !ok {
		return models.AttributeTypeDef{}, false
	}
	for _, a := range t.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return models.AttributeTypeDef{}, false
}

// bindFloatOrView dispatches a fenced code block to the float or view
// harvester depending on which type registry it resolves against
// (§4.4). A block whose info string resolves to neither is ordinary
// code content and is left untouched.
func (w *walker) bindFloatOrView(n *docast.Node) error {
	info, ok := parseInfoString(n.Lang)
	if !ok {
		return nil
	}

	if ft, ok := w.ini.Model.ResolveFloatType(info.TypeRef); ok {
		return w.bindFloat(n, ft, info)
	}
	if vt, ok := w.ini.Model.ResolveViewType(info.TypeRef); ok {
		return w.bindView(n.Text, n.Line, n, vt, info, true)
	}
	return nil
}

func (w *walker) parentObjectID() *int64 {
	top, ok := w.topObject()
	if !ok {
		return nil
	}
	id := top.id
	return &id
}

func (w *walker) bindFloat(n *docast.Node, ft models.FloatType, info infoString) error {
	label := info.Label
	if label == "" {
		label = fmt.Sprintf("%s:%s", strings.ToLower(ft.Identifier), hasher.String(n.Text)[:8])
	}

	astJSON, err := n.EncodeJSON()
	if err != nil {
		return err
	}

	pandocAttrs := ""
	if len(info.Attrs) > 0 {
		b, err := json.Marshal(info.Attrs)
		if err != nil {
			return fmt.Errorf("failed to encode float attributes for %s: %w", label, err)
		}
		pandocAttrs = string(b)
	}

	f := &models.SpecFloat{
		ContentSHA:       hasher.String(n.Text),
		SpecificationRef: w.specID,
		TypeRef:          ft.Identifier,
		FromFile:         w.doc.SourcePath,
		FileSeq:          w.doc.NextFileSeq(),
		StartLine:        n.Line,
		Label:            label,
		Anchor:           label,
		Caption:          info.Attrs["caption"],
		RawContent:       n.Text,
		RawAST:           astJSON,
		ParentObjectID:   w.parentObjectID(),
		PandocAttributes: pandocAttrs,
		SyntaxKey:        info.Lang,
	}

	_, err = store.InsertSpecFloat(w.ctx, w.q, f)
	return err
}

// bindView binds either a block-level fenced code view (isBlock=true,
// needing its own AST capture) or an inline code-span view (§4.4) into a
// SpecView row.
func (w *walker) bindView(content string, line int, n *docast.Node, vt models.ViewType, info infoString, isBlock bool) error {
	label := info.Label
	if label == "" {
		label = fmt.Sprintf("%s:%s", strings.ToLower(vt.Identifier), hasher.String(content)[:8])
	}

	var astJSON string
	if isBlock {
		var err error
		astJSON, err = n.EncodeJSON()
		if err != nil {
			return err
		}
	}

	v := &models.SpecView{
		ContentSHA:       hasher.String(content),
		SpecificationRef: w.specID,
		TypeRef:          vt.Identifier,
		FromFile:         w.doc.SourcePath,
		FileSeq:          w.doc.NextFileSeq(),
		StartLine:        line,
		Label:            label,
		Anchor:           label,
		RawContent:       content,
		RawAST:           astJSON,
		ParentObjectID:   w.parentObjectID(),
	}

	_, err := store.InsertSpecView(w.ctx, w.q, v)
	return err
}

func (w *walker) bindInlineView(n *docast.Node) error {
	name, value, ok := parseAttributeLine(n.Text)
	if !ok {
		return nil
	}
	vt, ok := w.ini.Model.ResolveViewType(name)
	if !ok {
		return nil
	}
	return w.bindView(value, n.Line, n, vt, infoString{TypeRef: vt.Identifier}, false)
}

// bindRelation harvests an unresolved relation row from a link whose
// target begins with a registered selector (§4.5 step 5, §4.4). The
// target type and object are left null for the Analyzer (§4.7) to fill.
func (w *walker) bindRelation(n *docast.Node) error {
	selector, ok := matchSelector(n.Target, w.selectors)
	if !ok {
		return nil
	}

	// target_text is the normalized link body (§3): the selector prefix,
	// and a single separating colon if the author wrote one (multi-char
	// selectors like `@cite` read naturally as `@cite:key`), are stripped
	// so the Analyzer always sees a bare PID or label expression.
	body := strings.TrimPrefix(n.Target, selector)
	body = strings.TrimPrefix(body, ":")

	r := &models.SpecRelation{
		SpecificationRef: w.specID,
		SourceObjectID:   w.parentObjectID(),
		TargetText:       body,
		LinkSelector:     selector,
		FromFile:         w.doc.SourcePath,
		LinkLine:         n.Line,
	}

	_, err := store.InsertSpecRelation(w.ctx, w.q, r)
	return err
}
