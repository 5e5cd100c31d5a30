package extract

import (
	"strings"

	"github.com/starford/moxide/internal/parser"
)

// parseGlossary segments a {glossary} directive body into terms. A term is a
// flush-left line followed by indented definition lines; option lines like
// :sorted: are skipped.
func parseGlossary(body string, base int) []GlossaryTerm {
	var terms []GlossaryTerm
	var cur *GlossaryTerm
	var def []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Definition = strings.Join(def, " ")
		terms = append(terms, *cur)
		cur = nil
		def = nil
	}

	off := 0
	for _, line := range strings.Split(body, "\n") {
		start := base + off
		off += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, ":") && strings.HasSuffix(trimmed, ":") {
			continue
		}
		indented := strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
		if indented {
			if cur != nil {
				def = append(def, trimmed)
			}
			continue
		}
		flush()
		cur = &GlossaryTerm{
			Term: trimmed,
			Span: parser.Span{Start: start, End: start + len(strings.TrimRight(line, " \t"))},
		}
	}
	flush()
	return terms
}
