// Package initializer implements the Initializer component (§4.5): it
// walks a parsed, include-expanded document AST and populates
// specifications, objects, attributes, floats, views, and unresolved
// relations for one dirty document.
package initializer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/speccompiler/internal/models"
)

// headingPattern matches the syntactic overlay's heading form
// `type: Title @PID` (§4.4), with both `type:` and `@PID` optional.
var headingPattern = regexp.MustCompile(`^(?:([A-Za-z_][A-Za-z0-9_]*):\s*)?(.*?)(?:\s+@(\S+))?$`)

// headingTitle is the parsed form of one heading line.
type headingTitle struct {
	TypeRef string // empty when no `type:` prefix was present
	Title   string
	PID     string // empty when no `@PID` was present
}

func parseHeading(text string) headingTitle {
	text = strings.TrimSpace(text)
	m := headingPattern.FindStringSubmatch(text)
	if m == nil {
		return headingTitle{Title: text}
	}
	return headingTitle{TypeRef: m[1], Title: strings.TrimSpace(m[2]), PID: m[3]}
}

// blockAttrPattern matches a fenced code block or inline code info string
// of the form `type[.lang]:label{key="val" ...}` (§4.4), where label and
// the attribute map are both optional.
var blockAttrPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\.([A-Za-z0-9_]+))?(?::([A-Za-z0-9_\-]+))?(?:\{(.*)\})?$`)

// infoString is the parsed form of a float/view info string.
type infoString struct {
	TypeRef string
	Lang    string
	Label   string
	Attrs   map[string]string
}

func parseInfoString(raw string) (infoString, bool) {
	raw = strings.TrimSpace(raw)
	m := blockAttrPattern.FindStringSubmatch(raw)
	if m == nil || m[1] == "" {
		return infoString{}, false
	}
	return infoString{TypeRef: m[1], Lang: m[2], Label: m[3], Attrs: parseAttrs(m[4])}, true
}

var attrPairPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*=\s*"([^"]*)"`)

func parseAttrs(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := map[string]string{}
	for _, m := range attrPairPattern.FindAllStringSubmatch(raw, -1) {
		out[m[1]] = m[2]
	}
	return out
}

// attributePattern matches an attribute block-quote's leading `key:
// value` line (§4.4).
var attributePattern = regexp.MustCompile(`(?s)^([A-Za-z_][A-Za-z0-9_]*):\s*(.*)$`)

func parseAttributeLine(text string) (name, value string, ok bool) {
	m := attributePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", "", false
	}
	return m[1], strings.TrimSpace(m[2]), true
}

// castValue casts raw into one of the six typed AttributeValue columns
// per dt. A casting failure returns a non-nil error; the caller records a
// diagnostic but keeps the raw value (§4.5 step 2, §7
// `object_cast_failures`).
func castValue(dt models.AttributeDatatype, raw string, enumValues []string) (models.AttributeValue, error) {
	a := models.AttributeValue{RawValue: raw, Datatype: dt}

	switch dt {
	case models.DatatypeInteger:
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return a, fmt.Errorf("invalid integer %q: %w", raw, err)
		}
		a.IntValue = &v
	case models.DatatypeReal:
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return a, fmt.Errorf("invalid real %q: %w", raw, err)
		}
		a.RealValue = &v
	case models.DatatypeBoolean:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return a, fmt.Errorf("invalid boolean %q: %w", raw, err)
		}
		a.BoolValue = &v
	case models.DatatypeDate:
		if !datePattern.MatchString(strings.TrimSpace(raw)) {
			return a, fmt.Errorf("invalid date %q: want YYYY-MM-DD", raw)
		}
		v := strings.TrimSpace(raw)
		a.DateValue = &v
	case models.DatatypeEnum:
		v := strings.TrimSpace(raw)
		if len(enumValues) > 0 && !contains(enumValues, v) {
			return a, fmt.Errorf("invalid enum value %q", raw)
		}
		a.EnumRef = &v
	case models.DatatypeXHTML:
		a.XHTMLValue = raw
		v := raw
		a.StringValue = &v
	default: // STRING, and unregistered keys default here (§4.4)
		v := raw
		a.StringValue = &v
		a.Datatype = models.DatatypeString
	}
	return a, nil
}

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// titleSlug derives a section label's slug component (§4.5 step 7):
// lowercase, non-alphanumerics collapsed to single hyphens, trimmed.
func titleSlug(title string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
