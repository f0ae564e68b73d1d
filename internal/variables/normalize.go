package variables

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize reduces a placeholder name to its canonical key form so that
// visually equivalent spellings compare equal: case-insensitive, accents
// stripped, and runs of spaces/underscores/hyphens collapsed to one
// underscore. "Día de Inicio" and "dia_de_inicio" normalize identically.
func Normalize(name string) string {
	folded, _, err := transform.String(stripMarks, name)
	if err != nil {
		// Transform only fails on malformed UTF-8; fall back to the raw name
		// rather than lose the placeholder.
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		switch {
		case r == ' ' || r == '_' || r == '-' || r == '\t':
			pendingSep = true
		default:
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Equivalent reports whether two placeholder names normalize to the same key.
func Equivalent(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// AutoMap pairs template placeholders with known resolver keys by normalized
// equivalence. Placeholders with no equivalent key are absent from the result,
// leaving them for manual mapping.
func AutoMap(placeholders, knownKeys []string) map[string]string {
	normalized := make(map[string]string, len(knownKeys))
	for _, key := range knownKeys {
		// Match on the field part: "employee.full_name" should bind the
		// placeholder "Full Name".
		field := key
		if idx := strings.LastIndex(key, "."); idx >= 0 {
			field = key[idx+1:]
		}
		if _, taken := normalized[Normalize(field)]; !taken {
			normalized[Normalize(field)] = key
		}
	}

	mapped := make(map[string]string)
	for _, placeholder := range placeholders {
		if key, ok := normalized[Normalize(placeholder)]; ok {
			mapped[placeholder] = key
		}
	}
	return mapped
}
