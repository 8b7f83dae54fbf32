package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes characters and strips combining marks ("é" -> "e").
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func fold(value string) string {
	out, _, err := transform.String(foldMarks, value)
	if err != nil {
		return value
	}
	return out
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	return strings.ToLower(buildToken(value, false))
}

// FileToken converts an identifier into a case-preserving file-name token.
// Letters, digits, '+', '-', '_' and '.' are kept; other characters become
// underscores. Returns "unknown" when nothing usable remains.
func FileToken(value string) string {
	return buildToken(value, true)
}

func buildToken(value string, keepSigns bool) string {
	value = strings.TrimSpace(fold(value))
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case keepSigns && (r == '+' || r == '.'):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-.")
	if out == "" || out == "+" {
		return "unknown"
	}
	return out
}
