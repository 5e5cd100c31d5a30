package extract

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Slugify converts heading text into its anchor slug: unicode-normalized,
// lowercased, with runs of whitespace and punctuation collapsed into single
// hyphens and leading/trailing hyphens stripped. The result is stable:
// Slugify(Slugify(x)) == Slugify(x).
func Slugify(text string) string {
	normalized := norm.NFKC.String(text)
	var b strings.Builder
	b.Grow(len(normalized))
	pendingDash := false
	for _, r := range normalized {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(unicode.ToLower(r))
		default:
			pendingDash = true
		}
	}
	return b.String()
}
