package parser

import (
	"regexp"
	"strings"
)

var (
	roleRe      = regexp.MustCompile("\\{([A-Za-z][A-Za-z0-9_-]*)\\}`([^`\n]+)`")
	roleBodyRe  = regexp.MustCompile(`^(.*\S)\s*<([^<>]+)>$`)
	linkRe      = regexp.MustCompile(`(!?)\[([^\[\]]*)\]\(([^()\n]*)\)`)
	tagRe       = regexp.MustCompile(`(?:^|\s)(#([\p{L}_][\p{L}\p{N}_/'-]*))`)
	subRe       = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_-]*)\s*\}\}`)
	footnoteRe  = regexp.MustCompile(`\[(\^[^\s\[\]]+)\]`)
	shortcutRe  = regexp.MustCompile(`\[([^\[\]]+)\]`)
	fmCloseRe   = regexp.MustCompile(`(?m)^---\s*$`)
	alphaTagRe  = regexp.MustCompile(`\p{L}`)
)

// scanInline performs the single global pass for inline constructs over the
// raw source. Matches inside directive headers or the frontmatter block are
// dropped; matches inside literal regions or code spans are flagged InCode
// so the extractor can apply the configured suppression policy.
func scanInline(t *Tree, opts Options) {
	src := t.Source
	headers := collectHeaderSpans(t)
	if fm, ok := frontmatterSpan(src); ok {
		headers = append(headers, fm)
	}

	inHeader := func(off int) bool {
		for _, h := range headers {
			if h.Contains(off) {
				return true
			}
		}
		return false
	}
	inLiteral := func(off int) bool {
		for _, l := range t.Literal {
			if l.Contains(off) {
				return true
			}
		}
		return false
	}
	// A match beginning at off is enclosed by a code span only when the span
	// opened before it; a role's own payload span opens inside the role.
	inCodeSpan := func(off int) bool {
		for _, c := range t.CodeSpans {
			if c.Start <= off && off < c.End {
				return true
			}
		}
		return false
	}
	inCode := func(off int) bool { return inLiteral(off) || inCodeSpan(off) }
	inComment := func(off int) bool {
		for _, c := range t.Comments {
			if c.Contains(off) {
				return true
			}
		}
		return false
	}

	// Roles.
	for _, m := range roleRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		if inHeader(start) {
			continue
		}
		name := src[m[2]:m[3]]
		body := src[m[4]:m[5]]
		target, display := body, ""
		targetSpan := Span{m[4], m[5]}
		if dm := roleBodyRe.FindStringSubmatchIndex(body); dm != nil {
			display = strings.TrimSpace(body[dm[2]:dm[3]])
			target = body[dm[4]:dm[5]]
			targetSpan = Span{m[4] + dm[4], m[4] + dm[5]}
		}
		t.Roles = append(t.Roles, Role{
			Name:       name,
			Target:     target,
			Display:    display,
			Span:       Span{start, end},
			TargetSpan: targetSpan,
			InCode:     inCode(start),
			InComment:  inComment(start),
		})
	}

	// Markdown links and images.
	var linkSpans []Span
	for _, m := range linkRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		if inHeader(start) {
			continue
		}
		linkSpans = append(linkSpans, Span{start, end})
		t.Links = append(t.Links, Link{
			Target:    strings.TrimSpace(src[m[6]:m[7]]),
			Display:   src[m[4]:m[5]],
			Span:      Span{start, end},
			Image:     m[3] > m[2],
			InCode:    inCode(start),
			InComment: inComment(start),
		})
	}
	inLink := func(off int) bool {
		for _, l := range linkSpans {
			if l.Contains(off) {
				return true
			}
		}
		return false
	}

	// Tags.
	for _, m := range tagRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[2], m[3] // the #tag token, not the leading boundary
		name := src[m[4]:m[5]]
		if inHeader(start) || !alphaTagRe.MatchString(name) {
			continue
		}
		t.Tags = append(t.Tags, Tag{
			Name:      name,
			Span:      Span{start, end},
			InCode:    inCode(start),
			InComment: inComment(start),
		})
	}

	// Substitution references.
	for _, m := range subRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		if inHeader(start) {
			continue
		}
		t.Subs = append(t.Subs, SubstitutionRef{
			Name:      src[m[2]:m[3]],
			Span:      Span{start, end},
			InCode:    inCode(start),
			InComment: inComment(start),
		})
	}

	// Footnote references: [^id] not followed by a colon (definitions).
	for _, m := range footnoteRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		if inHeader(start) || followedBy(src, end, ':') {
			continue
		}
		t.Footnotes = append(t.Footnotes, FootnoteRef{
			ID:        src[m[2]:m[3]],
			Span:      Span{start, end},
			InCode:    inCode(start),
			InComment: inComment(start),
		})
	}

	// Link-reference shortcuts: [label] with no following (, [ or :.
	for _, m := range shortcutRe.FindAllStringSubmatchIndex(src, -1) {
		start, end := m[0], m[1]
		label := src[m[2]:m[3]]
		if inHeader(start) || inLink(start) || strings.HasPrefix(label, "^") {
			continue
		}
		if followedBy(src, end, '(') || followedBy(src, end, '[') || followedBy(src, end, ':') {
			continue
		}
		if start > 0 && src[start-1] == '!' {
			continue
		}
		t.Shortcuts = append(t.Shortcuts, ShortcutRef{
			Label:     label,
			Span:      Span{start, end},
			InCode:    inCode(start),
			InComment: inComment(start),
		})
	}
}

// collectHeaderSpans returns the fence/argument/option regions of every
// directive: the parts of its span not covered by its body.
func collectHeaderSpans(t *Tree) []Span {
	var out []Span
	var walk func(ds []*Directive)
	walk = func(ds []*Directive) {
		for _, d := range ds {
			if d.BodySpan.End > d.BodySpan.Start {
				out = append(out, Span{d.Span.Start, d.BodySpan.Start})
				out = append(out, Span{d.BodySpan.End, d.Span.End})
			} else {
				out = append(out, d.Span)
			}
			walk(d.Children)
		}
	}
	walk(t.Directives)
	return out
}

// frontmatterSpan returns the leading ---...--- block at offset zero.
func frontmatterSpan(src string) (Span, bool) {
	if !strings.HasPrefix(src, "---\n") {
		return Span{}, false
	}
	loc := fmCloseRe.FindStringIndex(src[4:])
	if loc == nil {
		return Span{}, false
	}
	return Span{0, 4 + loc[1]}, true
}

func followedBy(src string, pos int, ch byte) bool {
	return pos < len(src) && src[pos] == ch
}
