// Package normalize builds lookup keys for shipper names so that contract
// records and order payloads agree on who the shipper is.
// Pipeline order
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFKD so accents split from their base letters
// 3 Case folding
// 4 Remove combining marks and format characters
// 5 Width fold fullwidth to ASCII
// 6 Punctuation to spaces, "&" to "and"
// 7 Collapse whitespace to single spaces and trim
package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of fresh transformer chains; a chain is not safe for concurrent use
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKD,
			cases.Fold(),
			runes.Remove(runes.In(unicode.Mn)),
			runes.Remove(runes.In(unicode.Cf)),
			width.Fold,
		)
	},
}

// Key returns the normalized lookup key for a shipper name. Empty in, empty out
func Key(name string) string {
	if strings.TrimSpace(name) == "" {
		return ""
	}
	s := strings.ToValidUTF8(name, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err == nil {
		s = ns
	}

	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return collapseSpaces(s)
}

// Equal reports whether two names resolve to the same key
func Equal(a, b string) bool { return Key(a) == Key(b) }

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
