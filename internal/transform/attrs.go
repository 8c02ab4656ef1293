package transform

import (
	"encoding/json"
	"strings"
)

// decodePandocAttributes unmarshals a SpecFloat's stored attribute JSON
// (set by the Initializer from a float's info-string key="val" pairs).
// An empty string is not an error; it means no attributes were present.
func decodePandocAttributes(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(raw), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func splitLines(raw string) []string {
	return strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
}
