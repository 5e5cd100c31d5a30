package query

import (
	"fmt"
	"strings"

	"github.com/starford/moxide/internal/vault"
)

const (
	hoverMaxChars     = 512
	hoverMaxBacklinks = 20
)

// Hover renders a Markdown preview for the position: a short excerpt of the
// reference's target plus a backlink list, or the backlink list alone when
// the position is on a referenceable.
func Hover(s *vault.Snapshot, path string, offset int, opts Options) string {
	d := s.Doc(path)
	if d == nil {
		return ""
	}
	cur := CursorAt(s, path, offset)

	var target *vault.Referenceable
	withExcerpt := false
	switch {
	case cur.Ref != nil:
		cands := s.Resolve(d, *cur.Ref)
		if len(cands) == 0 {
			return ""
		}
		target = &cands[0]
		withExcerpt = true
	case cur.Referenceable != nil:
		target = cur.Referenceable
	default:
		return ""
	}

	var b strings.Builder
	if withExcerpt {
		if target.Kind == vault.TGlossary {
			fmt.Fprintf(&b, "**%s** — %s\n", target.Name, target.Text)
		} else if excerpt := targetExcerpt(s, *target, opts); excerpt != "" {
			b.WriteString(excerpt)
			b.WriteString("\n")
		}
	}

	backs := backlinkLocations(s, *target)
	if len(backs) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "**%d linked mention(s)**\n", len(backs))
		for i, loc := range backs {
			if i == hoverMaxBacklinks {
				b.WriteString("- …\n")
				break
			}
			if doc := s.Doc(loc.Path); doc != nil {
				line, _ := doc.Rope.LineCol(loc.Span.Start)
				fmt.Fprintf(&b, "- %s:%d\n", doc.Rel, line+1)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// targetExcerpt slices the target document from its defining position:
// at most opts.HoverLines lines, stopping at the first blank line, trimmed
// to 512 characters in total.
func targetExcerpt(s *vault.Snapshot, target vault.Referenceable, opts Options) string {
	doc := s.Doc(target.Path)
	if doc == nil {
		return ""
	}
	maxLines := opts.HoverLines
	if maxLines <= 0 {
		maxLines = 10
	}
	startLine, _ := doc.Rope.LineCol(target.Span.Start)
	if target.Kind == vault.TFile {
		startLine = 0
	}

	var lines []string
	total := 0
	for i := startLine; i < doc.Rope.LineCount() && len(lines) < maxLines; i++ {
		line := doc.Rope.Line(i)
		if strings.TrimSpace(line) == "" && len(lines) > 0 {
			break
		}
		if total+len(line) > hoverMaxChars {
			line = line[:max(0, hoverMaxChars-total)]
			lines = append(lines, line+"…")
			break
		}
		total += len(line)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
