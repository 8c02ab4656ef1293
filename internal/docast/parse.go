package docast

import (
	"fmt"

	"github.com/yuin/goldmark"
	gast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// engine is the shared goldmark configuration used by Parse. Tables and
// linkify are enabled because list-table floats (§4.10) and bare-URL
// relation targets both rely on them.
var engine = goldmark.New(
	goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Parse runs the external document-AST engine over source and converts
// its result into an opaque *Node tree (§4.4 Document Syntax Contract).
// source must already be include-expanded (§4.2).
func Parse(source []byte) (*Node, error) {
	reader := text.NewReader(source)
	root := engine.Parser().Parse(reader)

	conv := &converter{source: source}
	out := NewDocument()

	var walkErr error
	err := gast.Walk(root, func(n gast.Node, entering bool) (gast.WalkStatus, error) {
		if !entering {
			return gast.WalkContinue, nil
		}
		if n.Type() == gast.TypeDocument {
			return gast.WalkContinue, nil
		}
		if n.Parent() != nil && n.Parent().Type() == gast.TypeDocument {
			child, err := conv.convert(n)
			if err != nil {
				walkErr = err
				return gast.WalkStop, err
			}
			if child != nil {
				out.Append(child)
			}
			// top-level nodes are converted recursively by convert();
			// do not descend into them again from the top-level walk.
			return gast.WalkSkipChildren, nil
		}
		return gast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk document AST: %w", err)
	}
	if walkErr != nil {
		return nil, walkErr
	}

	return out, nil
}

// converter holds the source buffer needed to resolve goldmark's
// byte-segment text nodes into literal strings.
type converter struct {
	source []byte
}

func (c *converter) convert(n gast.Node) (*Node, error) {
	switch v := n.(type) {
	case *gast.Heading:
		node := &Node{Kind: KindHeading, Level: v.Level}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.Paragraph:
		node := &Node{Kind: KindParagraph}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.Blockquote:
		node := &Node{Kind: KindBlockquote}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.FencedCodeBlock:
		lang := string(v.Language(c.source))
		return &Node{Kind: KindCodeBlock, Lang: lang, Text: blockLiteral(v, c.source)}, nil

	case *gast.CodeBlock:
		return &Node{Kind: KindCodeBlock, Text: blockLiteral(v, c.source)}, nil

	case *gast.List:
		node := &Node{Kind: KindList}
		if v.IsOrdered() {
			node.Attrs = map[string]string{"ordered": "true"}
		}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.ListItem:
		node := &Node{Kind: KindListItem}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.ThematicBreak:
		return &Node{Kind: KindThematicBreak}, nil

	case *gast.HTMLBlock:
		return &Node{Kind: KindHTMLBlock, Text: htmlBlockLiteral(v, c.source)}, nil

	case *extast.Table:
		node := &Node{Kind: KindTable}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *extast.TableRow:
		node := &Node{Kind: KindTableRow}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *extast.TableHeader:
		node := &Node{Kind: KindTableRow, Attrs: map[string]string{"header": "true"}}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *extast.TableCell:
		node := &Node{Kind: KindTableCell}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.Text:
		return &Node{Kind: KindText, Text: string(v.Segment.Value(c.source))}, nil

	case *gast.String:
		return &Node{Kind: KindText, Text: string(v.Value)}, nil

	case *gast.Emphasis:
		kind := KindEmphasis
		if v.Level >= 2 {
			kind = KindStrong
		}
		node := &Node{Kind: kind}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.CodeSpan:
		node := &Node{Kind: KindCodeSpan}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		node.Text = Stringify(node)
		node.Children = nil
		return node, nil

	case *gast.Link:
		node := &Node{Kind: KindLink, Target: string(v.Destination), Title: string(v.Title)}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.Image:
		node := &Node{Kind: KindImage, Target: string(v.Destination), Title: string(v.Title)}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		return node, nil

	case *gast.AutoLink:
		dest := string(v.URL(c.source))
		return &Node{Kind: KindLink, Target: dest, Text: dest}, nil

	case *gast.SoftLineBreak, *gast.HardLineBreak:
		return &Node{Kind: KindSoftBreak}, nil

	default:
		// Unknown node kinds (e.g. rare inline extensions) degrade to
		// their stringified text content rather than aborting the parse.
		node := &Node{Kind: KindText}
		if err := c.convertChildren(node, n); err != nil {
			return nil, err
		}
		node.Text = Stringify(node)
		node.Children = nil
		return node, nil
	}
}

func (c *converter) convertChildren(dst *Node, n gast.Node) error {
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		converted, err := c.convert(child)
		if err != nil {
			return err
		}
		if converted != nil {
			dst.Append(converted)
		}
	}
	return nil
}

func blockLiteral(n gast.Node, source []byte) string {
	var out []byte
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(source)...)
	}
	return string(out)
}

func htmlBlockLiteral(n *gast.HTMLBlock, source []byte) string {
	var out []byte
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out = append(out, seg.Value(source)...)
	}
	return string(out)
}
