// Package orderid validates and de-duplicates backend order identifiers
package orderid

import (
	"regexp"
	"strings"
)

// Length bounds for an order id
const (
	MinLen = 4
	MaxLen = 32
)

var pattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Valid reports whether id matches the pattern and length bounds
func Valid(id string) bool {
	return len(id) >= MinLen && len(id) <= MaxLen && pattern.MatchString(id)
}

// Clean trims input ids and drops blanks and duplicates, keeping first
// occurrence and input order. valid counts the ids that pass Valid
func Clean(ids []string) (out []string, valid int) {
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
		if Valid(id) {
			valid++
		}
	}
	return out, valid
}

// Split parses free text input (commas, whitespace, newlines) into raw ids
func Split(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
}
