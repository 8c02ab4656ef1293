// Package transform implements the Internal Transformers (§4.10): the
// synchronous `raw_content -> block` conversions for float types that do
// not need an external render subprocess: the CSV/TSV/list-table reader
// (TABLE) here, and the LISTING and FIGURE transforms in transform.go;
// new internal transformers register into the same dispatch table.
package transform

import (
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ternarybob/speccompiler/internal/docast"
)

// listTableMetadata is the attribute-map subset list-table transforms
// recognize (§4.10): `header-rows`, `header-cols`, `widths` (normalized
// to sum 1.0), `aligns` (comma list of `l|c|r`).
type listTableMetadata struct {
	HeaderRows int
	HeaderCols int
	Widths     []float64
	Aligns     []string
}

func parseListTableMetadata(attrs map[string]string) listTableMetadata {
	meta := listTableMetadata{}
	if v, ok := attrs["header-rows"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			meta.HeaderRows = n
		}
	}
	if v, ok := attrs["header-cols"]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			meta.HeaderCols = n
		}
	}
	if v, ok := attrs["widths"]; ok {
		meta.Widths = normalizeWidths(parseFloatList(v))
	}
	if v, ok := attrs["aligns"]; ok {
		for _, a := range strings.Split(v, ",") {
			meta.Aligns = append(meta.Aligns, strings.TrimSpace(a))
		}
	}
	return meta
}

func parseFloatList(raw string) []float64 {
	var out []float64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// normalizeWidths rescales widths so they sum to 1.0 (§4.10). An empty
// or all-zero input is returned unchanged.
func normalizeWidths(widths []float64) []float64 {
	var sum float64
	for _, w := range widths {
		sum += w
	}
	if sum <= 0 {
		return widths
	}
	out := make([]float64, len(widths))
	for i, w := range widths {
		out[i] = w / sum
	}
	return out
}

// looksLikeListTable detects the bullet-marker form
// §4.10 distinguishes from plain CSV: a list-table's raw content opens
// with a `- ` bullet per row, each cell itself a nested `- ` bullet,
// rather than comma/tab-delimited lines.
func looksLikeListTable(raw string) bool {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		return strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")
	}
	return false
}

// transformTable converts raw_content into a Table AST block, dispatching
// to the list-table reader or the delimited (CSV/TSV) reader depending
// on the content's shape (§4.10).
func transformTable(raw string, attrs map[string]string) (*docast.Node, error) {
	meta := parseListTableMetadata(attrs)

	var rows [][]string
	var err error
	if looksLikeListTable(raw) {
		rows = readListTableRows(raw)
	} else {
		rows, err = readDelimited(raw)
		if err != nil {
			return nil, err
		}
	}

	return buildTableNode(rows, meta), nil
}

// readListTableRows parses a bullet-marker list-table: each top-level `-
// `/`* ` line is a row, and the row's own nested `- `/`* ` lines (indented
// beneath it) are its cells in order.
func readListTableRows(raw string) [][]string {
	var rows [][]string
	var current []string
	haveRow := false

	flush := func() {
		if haveRow {
			rows = append(rows, current)
		}
		current = nil
		haveRow = false
	}

	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := leadingSpaces(line)
		trimmed := strings.TrimSpace(line)
		bullet := strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ")
		if !bullet {
			continue
		}
		content := strings.TrimSpace(trimmed[2:])
		if indent == 0 {
			flush()
			current = []string{content}
			haveRow = true
		} else if haveRow {
			current = append(current, content)
		}
	}
	flush()
	return rows
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' {
			break
		}
		n++
	}
	return n
}

// readDelimited defers to the standard library's CSV reader, auto-
// detecting a tab delimiter when the first non-empty line contains a tab
// and no comma (§4.10 "TSV").
func readDelimited(raw string) ([][]string, error) {
	delim := ','
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, "\t") && !strings.Contains(line, ",") {
			delim = '\t'
		}
		break
	}

	r := csv.NewReader(strings.NewReader(raw))
	r.Comma = delim
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func buildTableNode(rows [][]string, meta listTableMetadata) *docast.Node {
	table := &docast.Node{Kind: docast.KindTable}
	if len(meta.Widths) > 0 || len(meta.Aligns) > 0 {
		attrs := map[string]string{}
		if len(meta.Widths) > 0 {
			if b, err := json.Marshal(meta.Widths); err == nil {
				attrs["widths"] = string(b)
			}
		}
		if len(meta.Aligns) > 0 {
			attrs["aligns"] = strings.Join(meta.Aligns, ",")
		}
		table.Attrs = attrs
	}

	headerRows := meta.HeaderRows
	for i, row := range rows {
		tr := &docast.Node{Kind: docast.KindTableRow}
		if i < headerRows {
			tr.Attrs = map[string]string{"header": "true"}
		}
		for j, cell := range row {
			td := &docast.Node{Kind: docast.KindTableCell, Text: cell}
			if j < meta.HeaderCols {
				if td.Attrs == nil {
					td.Attrs = map[string]string{}
				}
				td.Attrs["header"] = "true"
			}
			tr.Children = append(tr.Children, td)
		}
		table.Children = append(table.Children, tr)
	}
	return table
}
