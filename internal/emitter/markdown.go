package emitter

import (
	"fmt"
	"html"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"

	"github.com/ternarybob/speccompiler/internal/docast"
)

// renderHTML walks an assembled document tree into an HTML string. It is
// intentionally small: a faithful-enough HTML5 rendering to feed the
// down-conversion step below, not a competitor to the external writer's
// own HTML output.
func renderHTML(n *docast.Node) string {
	var b strings.Builder
	renderNode(&b, n)
	return b.String()
}

func renderNode(b *strings.Builder, n *docast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case docast.KindDocument:
		renderChildren(b, n)
	case docast.KindHeading:
		level := n.Level
		if level < 1 {
			level = 1
		}
		fmt.Fprintf(b, "<h%d>", level)
		renderChildren(b, n)
		fmt.Fprintf(b, "</h%d>\n", level)
	case docast.KindParagraph:
		b.WriteString("<p>")
		renderChildren(b, n)
		b.WriteString("</p>\n")
	case docast.KindBlockquote:
		b.WriteString("<blockquote>\n")
		renderChildren(b, n)
		b.WriteString("</blockquote>\n")
	case docast.KindCodeBlock:
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString("</code></pre>\n")
	case docast.KindList:
		b.WriteString("<ul>\n")
		renderChildren(b, n)
		b.WriteString("</ul>\n")
	case docast.KindListItem:
		b.WriteString("<li>")
		renderChildren(b, n)
		b.WriteString("</li>\n")
	case docast.KindTable:
		b.WriteString("<table>\n")
		renderChildren(b, n)
		b.WriteString("</table>\n")
	case docast.KindTableRow:
		b.WriteString("<tr>")
		renderChildren(b, n)
		b.WriteString("</tr>\n")
	case docast.KindTableCell:
		b.WriteString("<td>")
		renderChildren(b, n)
		b.WriteString("</td>")
	case docast.KindThematicBreak:
		b.WriteString("<hr/>\n")
	case docast.KindHTMLBlock, docast.KindRaw:
		b.WriteString(n.Text)
	case docast.KindText:
		b.WriteString(html.EscapeString(n.Text))
	case docast.KindEmphasis:
		b.WriteString("<em>")
		renderChildren(b, n)
		b.WriteString("</em>")
	case docast.KindStrong:
		b.WriteString("<strong>")
		renderChildren(b, n)
		b.WriteString("</strong>")
	case docast.KindCodeSpan:
		b.WriteString("<code>")
		b.WriteString(html.EscapeString(n.Text))
		b.WriteString("</code>")
	case docast.KindLink:
		fmt.Fprintf(b, `<a href="%s" title="%s">`, html.EscapeString(n.Target), html.EscapeString(n.Title))
		renderChildren(b, n)
		b.WriteString("</a>")
	case docast.KindImage:
		fmt.Fprintf(b, `<img src="%s" alt="%s"/>`, html.EscapeString(n.Target), html.EscapeString(n.Title))
	case docast.KindSoftBreak:
		b.WriteString("\n")
	default:
		renderChildren(b, n)
	}
}

func renderChildren(b *strings.Builder, n *docast.Node) {
	for _, c := range n.Children {
		renderNode(b, c)
	}
}

// ToMarkdown down-converts an assembled document to plain Markdown via
// an HTML-first pass, mirroring the teacher's own HTML-to-markdown
// transform service: render to HTML, then hand the HTML to the same
// down-converter library, falling back to a bare text dump rather than
// failing the whole emit if conversion produces nothing usable.
func ToMarkdown(n *docast.Node) (string, error) {
	htmlBody := renderHTML(n)
	if strings.TrimSpace(htmlBody) == "" {
		return "", nil
	}

	converter := md.NewConverter("", true, nil)
	converted, err := converter.ConvertString(htmlBody)
	if err != nil {
		return docast.Stringify(n), nil
	}

	trimmed := strings.TrimSpace(converted)
	if trimmed == "" {
		return docast.Stringify(n), nil
	}
	return converted, nil
}
