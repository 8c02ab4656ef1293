// Package include expands fenced `include` directives (§4.2) before the
// document reaches the Parser Adapter. Expansion runs over raw source
// bytes, not the parsed AST, since an included file may itself be a
// document fragment missing a valid heading structure.
package include

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ternarybob/speccompiler/internal/hasher"
	"github.com/ternarybob/speccompiler/internal/models"
)

// MaxDepth is the maximum include recursion depth (§4.2: "at least 100").
const MaxDepth = 100

var includeFence = regexp.MustCompile("(?m)^```include[ \t]*\r?\n([\\s\\S]*?)\r?\n```[ \t]*$")

// Result is the outcome of expanding one root document.
type Result struct {
	Source []byte                  // fully expanded source
	Edges  []models.BuildGraphEdge // every include edge discovered, root-relative
}

// CycleError reports an include cycle, with the full path for diagnostics.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("include cycle detected: %s", strings.Join(e.Path, " -> "))
}

// Expand reads rootPath and recursively expands every `include` fence,
// returning the fully expanded source and the set of include edges
// recorded against rootPath (§4.2, §4.13).
func Expand(rootPath string) (*Result, error) {
	r := &expander{root: rootPath, edges: map[string]string{}}

	source, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rootPath, err)
	}

	expanded, err := r.expand(rootPath, source, []string{absOrSelf(rootPath)}, 0)
	if err != nil {
		return nil, err
	}

	edges := make([]models.BuildGraphEdge, 0, len(r.edges))
	for path, sha1 := range r.edges {
		edges = append(edges, models.BuildGraphEdge{RootPath: rootPath, NodePath: path, NodeSHA1: sha1})
	}

	return &Result{Source: expanded, Edges: edges}, nil
}

type expander struct {
	root  string
	edges map[string]string // node path -> content sha1, deduplicated across the whole expansion
}

// expand replaces every `include` fence in source with the recursively
// expanded content of its listed paths. stack holds the absolute paths of
// every file currently being expanded, used for cycle detection; depth is
// the current recursion depth, enforced against MaxDepth.
func (r *expander) expand(currentPath string, source []byte, stack []string, depth int) ([]byte, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("include depth exceeds maximum of %d at %s", MaxDepth, currentPath)
	}

	matches := includeFence.FindAllSubmatchIndex(source, -1)
	if matches == nil {
		return source, nil
	}

	var out bytes.Buffer
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		bodyStart, bodyEnd := m[2], m[3]

		out.Write(source[last:start])

		paths := parseIncludeBody(source[bodyStart:bodyEnd])
		dir := filepath.Dir(currentPath)

		for _, p := range paths {
			incPath := p
			if !filepath.IsAbs(incPath) {
				incPath = filepath.Join(dir, incPath)
			}
			absPath := absOrSelf(incPath)

			if containsPath(stack, absPath) {
				return nil, &CycleError{Path: append(append([]string{}, stack...), absPath)}
			}

			data, err := os.ReadFile(incPath)
			if err != nil {
				return nil, fmt.Errorf("include file not found: %s (included from %s)", p, currentPath)
			}

			sha1 := hasher.Bytes(data)
			r.edges[incPath] = sha1

			expandedChild, err := r.expand(incPath, data, append(stack, absPath), depth+1)
			if err != nil {
				return nil, err
			}

			out.Write(expandedChild)
			out.WriteByte('\n')
		}

		last = end
	}
	out.Write(source[last:])

	return out.Bytes(), nil
}

// parseIncludeBody parses an `include` fence body: one path per line,
// blank lines and lines beginning with `#` ignored (§4.2).
func parseIncludeBody(body []byte) []string {
	var paths []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	return paths
}

func containsPath(stack []string, path string) bool {
	for _, p := range stack {
		if p == path {
			return true
		}
	}
	return false
}

func absOrSelf(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
