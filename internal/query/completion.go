package query

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sahilm/fuzzy"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/vault"
)

// CompletionKind follows the LSP CompletionItemKind numbering for the
// values used here.
type CompletionKind int

const (
	KindText      CompletionKind = 1
	KindKeyword   CompletionKind = 14
	KindFile      CompletionKind = 17
	KindReference CompletionKind = 18
)

// CompletionItem is one candidate, already ranked.
type CompletionItem struct {
	Label  string
	Detail string
	Kind   CompletionKind
	// Replace is the text to insert; empty means the label itself.
	Replace string
	// Span is the source range the insertion replaces.
	Span struct{ Start, End int }
}

var (
	directiveCtxRe  = regexp.MustCompile("(`{3,}|:{3,})\\{([A-Za-z0-9_-]*)$")
	roleTargetCtxRe = regexp.MustCompile("\\{([A-Za-z][A-Za-z0-9_-]*)\\}`([^`]*)$")
	roleNameCtxRe   = regexp.MustCompile(`(^|[^{])\{([A-Za-z0-9_-]*)$`)
	subCtxRe        = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_-]*)$`)
	linkCtxRe       = regexp.MustCompile(`\[[^\[\]]*\]\(([^()]*)$`)
	tagCtxRe        = regexp.MustCompile(`(^|\s)#([\p{L}\p{N}_/'-]*)$`)
)

// Completions produces candidates for the cursor position, dispatching on
// the text before the cursor.
func Completions(s *vault.Snapshot, docPath string, offset int, opts Options) []CompletionItem {
	d := s.Doc(docPath)
	if d == nil {
		return nil
	}
	line, _ := d.Rope.LineCol(offset)
	prefix := d.Rope.Slice(d.Rope.LineStart(line), offset)

	// Substitution context wins over the role-name context: both end in {.
	if m := subCtxRe.FindStringSubmatch(prefix); m != nil {
		return rank(m[1], offset, substitutionNames(d), KindReference, nil)
	}
	if m := directiveCtxRe.FindStringSubmatch(prefix); m != nil {
		names := append(append([]string{}, builtinDirectives...), opts.ExtraDirectives...)
		sort.Strings(names)
		return rank(m[2], offset, names, KindKeyword, nil)
	}
	if m := roleTargetCtxRe.FindStringSubmatch(prefix); m != nil {
		return roleTargetCompletions(s, m[1], m[2], offset, opts)
	}
	if m := linkCtxRe.FindStringSubmatch(prefix); m != nil {
		return linkCompletions(s, d, m[1], offset, opts)
	}
	if m := tagCtxRe.FindStringSubmatch(prefix); m != nil {
		return rank(m[2], offset, s.TagNames(), KindReference, nil)
	}
	if m := roleNameCtxRe.FindStringSubmatch(prefix); m != nil {
		names := append(append([]string{}, builtinRoles...), opts.ExtraRoles...)
		sort.Strings(names)
		return rank(m[2], offset, names, KindKeyword, nil)
	}
	return nil
}

func roleTargetCompletions(s *vault.Snapshot, role, q string, offset int, opts Options) []CompletionItem {
	switch role {
	case "ref":
		names := s.AnchorNames()
		if opts.HeadingCompletions {
			names = append(names, s.SlugNames()...)
		}
		return rank(q, offset, dedupe(names), KindReference, nil)
	case "numref":
		return rank(q, offset, dedupe(append(s.FigureLabels(), s.MathLabels()...)), KindReference, nil)
	case "eq":
		return rank(q, offset, s.MathLabels(), KindReference, nil)
	case "term":
		return rank(q, offset, s.GlossaryTerms(), KindReference, nil)
	case "doc", "download", "include":
		return rank(q, offset, relPaths(s, opts), KindFile, nil)
	}
	return nil
}

// linkCompletions handles ](… contexts: paths, or heading/anchor fragments
// once the partial target carries a #.
func linkCompletions(s *vault.Snapshot, d *vault.Document, partial string, offset int, opts Options) []CompletionItem {
	filePart, frag, hasFrag := strings.Cut(partial, "#")
	if !hasFrag {
		return rank(partial, offset, relPaths(s, opts), KindFile, nil)
	}

	target := d
	if filePart != "" {
		cands := s.Resolve(d, fileRef(filePart))
		if len(cands) == 0 {
			return nil
		}
		target = s.Doc(cands[0].Path)
		if target == nil {
			return nil
		}
	}
	var names []string
	for _, h := range target.Ex.Headings {
		names = append(names, h.Slug)
	}
	for _, a := range target.Ex.Anchors {
		names = append(names, a.Name)
	}
	return rank(frag, offset, dedupe(names), KindReference, nil)
}

func relPaths(s *vault.Snapshot, opts Options) []string {
	var out []string
	for _, d := range s.Docs() {
		rel := d.Rel
		if opts.LinkFilenamesOnly {
			rel = path.Base(rel)
		}
		if !opts.IncludeMDExtension {
			rel = strings.TrimSuffix(rel, ".md")
		}
		out = append(out, rel)
	}
	sort.Strings(out)
	return dedupe(out)
}

// rank orders candidates by fuzzy score with stable tie-breaking: score
// descending, then candidate ascending. An empty query returns everything
// in sorted order.
func rank(q string, offset int, candidates []string, kind CompletionKind, details map[string]string) []CompletionItem {
	span := struct{ Start, End int }{offset - len(q), offset}
	build := func(label string) CompletionItem {
		return CompletionItem{Label: label, Kind: kind, Detail: details[label], Span: span}
	}

	if strings.TrimSpace(q) == "" {
		out := make([]CompletionItem, 0, len(candidates))
		for _, c := range candidates {
			out = append(out, build(c))
		}
		return out
	}

	matches := fuzzy.Find(q, candidates)
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Str < matches[j].Str
	})
	out := make([]CompletionItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, build(m.Str))
	}
	return out
}

func substitutionNames(d *vault.Document) []string {
	if d.Ex.Front == nil {
		return nil
	}
	names := make([]string, 0, len(d.Ex.Front.Substitutions))
	for name := range d.Ex.Front.Substitutions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func fileRef(target string) extract.Reference {
	return extract.Reference{Kind: extract.RefFileLink, Target: target}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
