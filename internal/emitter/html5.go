package emitter

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// writeHTML5 invokes the writer subprocess with the assembled AST JSON
// on stdin (`-f json`), asking for standalone or fragment HTML5 output,
// then runs the postprocessor pass.
func writeHTML5(ctx context.Context, writer WriterFunc, astJSON []byte, cwd string, standalone bool, cssPath string) ([]byte, error) {
	args := []string{"-f", "json", "-t", "html5"}
	if standalone {
		args = append(args, "--standalone")
		if cssPath != "" {
			args = append(args, "--css", cssPath)
		}
	}

	out, err := writer(ctx, args, astJSON, cwd)
	if err != nil {
		return nil, err
	}
	return postprocessHTML5(out)
}

// postprocessHTML5 walks the writer's raw HTML output with goquery and
// fixes up what the writer's own generic renderer leaves behind: heading
// anchors for intra-document TOC/LOF links, and bare ampersands in
// href query strings the writer sometimes forgets to escape.
func postprocessHTML5(rawHTML []byte) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return rawHTML, nil
	}

	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if _, ok := s.Attr("id"); ok {
			return
		}
		slug := slugify(s.Text())
		if slug != "" {
			s.SetAttr("id", slug)
		}
	})

	rendered, err := doc.Html()
	if err != nil {
		return rawHTML, nil
	}
	return []byte(rendered), nil
}

func slugify(text string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
