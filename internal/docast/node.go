// Package docast wraps the external document-AST engine (goldmark) behind
// a small, well-typed access surface, per §9's "Pandoc-shaped AST passed
// by opaque reference" design note: the core never models goldmark's
// variant set directly — it threads a *Node tree through the pipeline and
// only this package's parse.go knows how that tree was produced.
package docast

import "encoding/json"

// Kind enumerates the block/inline node kinds the rest of the pipeline
// switches on. Kept intentionally small and Pandoc-shaped so the
// Emitter's external writer subprocess can consume the same JSON shape
// regardless of which engine produced it.
type Kind string

const (
	KindDocument      Kind = "Document"
	KindHeading       Kind = "Heading"
	KindParagraph     Kind = "Paragraph"
	KindBlockquote    Kind = "BlockQuote"
	KindCodeBlock     Kind = "CodeBlock"
	KindList          Kind = "List"
	KindListItem      Kind = "ListItem"
	KindTable         Kind = "Table"
	KindTableRow      Kind = "TableRow"
	KindTableCell     Kind = "TableCell"
	KindThematicBreak Kind = "ThematicBreak"
	KindHTMLBlock     Kind = "HTMLBlock"

	KindText      Kind = "Text"
	KindEmphasis  Kind = "Emphasis"
	KindStrong    Kind = "Strong"
	KindCodeSpan  Kind = "CodeSpan"
	KindLink      Kind = "Link"
	KindImage     Kind = "Image"
	KindSoftBreak Kind = "SoftBreak"
	KindRaw       Kind = "Raw" // opaque pre-rendered content (e.g. resolved float/view output)
)

// Node is the opaque, JSON-serializable AST node threaded through the
// pipeline. SPEC-IR columns (`ast`, `raw_ast`, `resolved_ast`,
// `header_ast`, `body_ast`) store Node.EncodeJSON() output.
type Node struct {
	Kind     Kind              `json:"kind"`
	Level    int               `json:"level,omitempty"`    // heading level
	Text     string            `json:"text,omitempty"`     // Text/CodeSpan/CodeBlock literal content
	Lang     string            `json:"lang,omitempty"`     // CodeBlock info-string language
	Target   string            `json:"target,omitempty"`   // Link/Image target
	Title    string            `json:"title,omitempty"`    // Link/Image title
	Attrs    map[string]string `json:"attrs,omitempty"`    // pandoc_attributes-style key/value pairs
	Children []*Node           `json:"children,omitempty"`
	Line     int               `json:"line,omitempty"`
}

// NewDocument builds an empty root document node.
func NewDocument() *Node {
	return &Node{Kind: KindDocument}
}

// Append adds a child node and returns it for chaining.
func (n *Node) Append(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Walk visits n and every descendant in pre-order. fn returning false
// stops descent into that node's children (but sibling traversal by the
// caller continues).
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// WalkBlocks visits only the block-level descendants (document,
// heading, paragraph, blockquote, code block, list/list item, table and
// its rows/cells, thematic break, HTML block).
func (n *Node) WalkBlocks(fn func(*Node) bool) {
	n.Walk(func(node *Node) bool {
		if isBlockKind(node.Kind) {
			return fn(node)
		}
		return true
	})
}

// WalkInlines visits only inline-level descendants within n.
func (n *Node) WalkInlines(fn func(*Node) bool) {
	n.Walk(func(node *Node) bool {
		if !isBlockKind(node.Kind) {
			return fn(node)
		}
		return true
	})
}

func isBlockKind(k Kind) bool {
	switch k {
	case KindDocument, KindHeading, KindParagraph, KindBlockquote, KindCodeBlock,
		KindList, KindListItem, KindTable, KindTableRow, KindTableCell,
		KindThematicBreak, KindHTMLBlock:
		return true
	}
	return false
}

// Stringify concatenates the text content of n and its descendants,
// used for title-slug derivation, search indexing, and caption text.
func Stringify(n *Node) string {
	var out []byte
	n.Walk(func(node *Node) bool {
		if node.Kind == KindText || node.Kind == KindCodeSpan {
			out = append(out, node.Text...)
		}
		return true
	})
	return string(out)
}

// EncodeJSON serializes n for storage in a SPEC-IR `ast`-shaped column.
func (n *Node) EncodeJSON() (string, error) {
	if n == nil {
		return "", nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeJSON parses a previously encoded Node. An empty string decodes
// to nil without error (SPEC-IR columns are nullable).
func DecodeJSON(data string) (*Node, error) {
	if data == "" {
		return nil, nil
	}
	var n Node
	if err := json.Unmarshal([]byte(data), &n); err != nil {
		return nil, err
	}
	return &n, nil
}
