package forecast

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldName normalizes a category name for matching: accents stripped,
// lowercased, whitespace trimmed. "Alimentação" and "alimentacao" fold to
// the same key.
func FoldName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		// Fold errors only happen on malformed UTF-8; fall back to the
		// raw name so matching stays case-insensitive at least.
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
