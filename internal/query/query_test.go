package query

import (
	"path"
	"strings"
	"testing"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/rope"
	"github.com/starford/moxide/internal/vault"
)

const testRoot = "/vault"

func newDoc(t *testing.T, rel, text string) *vault.Document {
	t.Helper()
	tree := parser.Parse(text, parser.DefaultOptions())
	return &vault.Document{
		Path: path.Join(testRoot, rel),
		Rel:  rel,
		Rev:  1,
		Rope: rope.New(text),
		Ex:   extract.Extract(tree, extract.Config{}),
	}
}

func build(t *testing.T, docs ...*vault.Document) *vault.Snapshot {
	t.Helper()
	return vault.New(testRoot, vault.CaseSmart).WithDocuments(docs)
}

// offsetOf returns the byte offset of the first occurrence of needle.
func offsetOf(t *testing.T, text, needle string) int {
	t.Helper()
	i := strings.Index(text, needle)
	if i < 0 {
		t.Fatalf("needle %q not in text", needle)
	}
	return i
}

func TestScenarioAnchorNavigation(t *testing.T) {
	aText := "(install)=\n# Installation\n"
	bText := "See {ref}`install`.\n"
	a := newDoc(t, "a.md", aText)
	b := newDoc(t, "b.md", bText)
	s := build(t, a, b)

	// GoToDefinition on the role in b.md lands on the anchor in a.md.
	pos := offsetOf(t, bText, "install")
	locs := GoToDefinition(s, b.Path, pos)
	if len(locs) != 1 {
		t.Fatalf("definitions = %+v", locs)
	}
	if locs[0].Path != a.Path || aText[locs[0].Span.Start:locs[0].Span.End] != "(install)=" {
		t.Errorf("definition = %+v", locs[0])
	}

	// FindReferences on the anchor returns the single use in b.md.
	refs := FindReferences(s, a.Path, offsetOf(t, aText, "(install)="))
	if len(refs) != 1 || refs[0].Path != b.Path {
		t.Fatalf("references = %+v", refs)
	}

	// Rename install -> setup rewrites both sides.
	edits := RenamePlan(s, a.Path, offsetOf(t, aText, "(install)="), "setup")
	if len(edits) != 2 {
		t.Fatalf("edits = %+v", edits)
	}
	byPath := map[string]Edit{}
	for _, e := range edits {
		byPath[e.Path] = e
	}
	ea := byPath[a.Path]
	if aText[:ea.Span.Start]+ea.NewText+aText[ea.Span.End:] != "(setup)=\n# Installation\n" {
		t.Errorf("a edit = %+v", ea)
	}
	eb := byPath[b.Path]
	if bText[:eb.Span.Start]+eb.NewText+bText[eb.Span.End:] != "See {ref}`setup`.\n" {
		t.Errorf("b edit = %+v", eb)
	}
}

func TestScenarioCodeBlockIsolation(t *testing.T) {
	xText := "```{code-block}\n{ref}`hidden`\n```\n\n{ref}`hidden`\n"
	x := newDoc(t, "x.md", xText)
	s := build(t, x)

	diags := Diagnostics(s, x.Path, DefaultOptions())
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %+v", diags)
	}
	visible := strings.LastIndex(xText, "{ref}`hidden`")
	if diags[0].Span.Start != visible {
		t.Errorf("diagnostic at %d, want %d", diags[0].Span.Start, visible)
	}
}

func TestScenarioIncludeCycle(t *testing.T) {
	a := newDoc(t, "a.md", "```{include} b.md\n```\n")
	b := newDoc(t, "b.md", "```{include} a.md\n```\n")
	s := build(t, a, b)

	diags := Diagnostics(s, a.Path, DefaultOptions())
	var cycle bool
	for _, d := range diags {
		if d.Severity == SeverityError && strings.Contains(d.Message, "cycle") {
			cycle = true
		}
	}
	if !cycle {
		t.Errorf("no cycle error on a.md: %+v", diags)
	}
}

func TestScenarioGlossaryHover(t *testing.T) {
	g := newDoc(t, "g.md", "```{glossary}\nMyST\n  Markedly Structured Text.\n```\n")
	hText := "See {term}`MyST`.\n"
	h := newDoc(t, "h.md", hText)
	s := build(t, g, h)

	pos := offsetOf(t, hText, "MyST")
	hover := Hover(s, h.Path, pos, DefaultOptions())
	if !strings.Contains(hover, "Markedly Structured Text.") {
		t.Errorf("hover = %q", hover)
	}

	locs := GoToDefinition(s, h.Path, pos)
	if len(locs) != 1 || locs[0].Path != g.Path {
		t.Fatalf("definitions = %+v", locs)
	}
	if got := s.Doc(g.Path).Rope.Slice(locs[0].Span.Start, locs[0].Span.End); got != "MyST" {
		t.Errorf("definition slice = %q", got)
	}
}

func TestScenarioIncrementalAnchorFix(t *testing.T) {
	pText := "{ref}`t`\n"
	p := newDoc(t, "p.md", pText)
	s := build(t, p)

	if diags := Diagnostics(s, p.Path, DefaultOptions()); len(diags) != 1 {
		t.Fatalf("expected one unresolved diagnostic, got %+v", diags)
	}

	p2Text := "(t)=\n" + pText
	p2 := newDoc(t, "p.md", p2Text)
	p2.Rev = 2
	s2 := s.WithDocument(p2)

	if diags := Diagnostics(s2, p.Path, DefaultOptions()); len(diags) != 0 {
		t.Fatalf("diagnostics after fix = %+v", diags)
	}
	locs := GoToDefinition(s2, p.Path, offsetOf(t, p2Text, "`t`")+1)
	if len(locs) != 1 || p2Text[locs[0].Span.Start:locs[0].Span.End] != "(t)=" {
		t.Errorf("definition = %+v", locs)
	}
}

func TestScenarioCompletionOrdering(t *testing.T) {
	v := newDoc(t, "v.md", "(install)=\n\n(installation-guide)=\n")
	qText := "{ref}`ins\n"
	q := newDoc(t, "q.md", qText)
	s := build(t, v, q)

	items := Completions(s, q.Path, offsetOf(t, qText, "ins")+3, DefaultOptions())
	if len(items) < 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Label != "install" || items[1].Label != "installation-guide" {
		t.Errorf("order = %q, %q", items[0].Label, items[1].Label)
	}
}

func TestCursorAtPrecedence(t *testing.T) {
	text := "# Head\n\n{ref}`x`\n"
	d := newDoc(t, "d.md", text)
	s := build(t, d)

	cur := CursorAt(s, d.Path, offsetOf(t, text, "`x`")+1)
	if cur.Ref == nil || cur.Ref.Kind != extract.RefRoleRef {
		t.Errorf("cursor on role = %+v", cur)
	}
	cur = CursorAt(s, d.Path, offsetOf(t, text, "Head"))
	if cur.Referenceable == nil || cur.Referenceable.Kind != vault.THeading {
		t.Errorf("cursor on heading = %+v", cur)
	}
	cur = CursorAt(s, d.Path, offsetOf(t, text, "\n\n")+1)
	if !cur.None() {
		t.Errorf("cursor on blank = %+v", cur)
	}
}

func TestGoToDefinitionOnReferenceableReturnsSelf(t *testing.T) {
	text := "(anchor-a)=\n"
	d := newDoc(t, "d.md", text)
	s := build(t, d)
	locs := GoToDefinition(s, d.Path, 2)
	if len(locs) != 1 || locs[0].Path != d.Path {
		t.Errorf("locs = %+v", locs)
	}
}

func TestHoverBacklinkList(t *testing.T) {
	aText := "(x)=\n# X\n"
	a := newDoc(t, "a.md", aText)
	b := newDoc(t, "b.md", "{ref}`x`\n")
	c := newDoc(t, "c.md", "{ref}`x`\n")
	s := build(t, a, b, c)

	hover := Hover(s, a.Path, 2, DefaultOptions())
	if !strings.Contains(hover, "2 linked mention(s)") {
		t.Errorf("hover = %q", hover)
	}
	if !strings.Contains(hover, "b.md:1") || !strings.Contains(hover, "c.md:1") {
		t.Errorf("hover = %q", hover)
	}
}

func TestHoverExcerptStopsAtBlankLine(t *testing.T) {
	aText := "(x)=\n# Title\nFirst paragraph line.\n\nSecond paragraph.\n"
	a := newDoc(t, "a.md", aText)
	bText := "{ref}`x`\n"
	b := newDoc(t, "b.md", bText)
	s := build(t, a, b)

	hover := Hover(s, b.Path, 1, DefaultOptions())
	if !strings.Contains(hover, "First paragraph line.") {
		t.Errorf("hover missing excerpt: %q", hover)
	}
	if strings.Contains(hover, "Second paragraph.") {
		t.Errorf("excerpt should stop at blank line: %q", hover)
	}
}

func TestUndefinedSubstitutionDiagnostic(t *testing.T) {
	text := "---\nsubstitutions:\n  ok: yes\n---\n\n{{ok}} {{missing}}\n"
	d := newDoc(t, "d.md", text)
	s := build(t, d)

	diags := Diagnostics(s, d.Path, DefaultOptions())
	if len(diags) != 1 || !strings.Contains(diags[0].Message, "missing") {
		t.Errorf("diagnostics = %+v", diags)
	}
}

func TestUnresolvedDiagnosticsToggle(t *testing.T) {
	d := newDoc(t, "d.md", "{ref}`nowhere`\n")
	s := build(t, d)
	opts := DefaultOptions()
	opts.UnresolvedDiagnostics = false
	if diags := Diagnostics(s, d.Path, opts); len(diags) != 0 {
		t.Errorf("diagnostics = %+v", diags)
	}
}

func TestRenameRejectsInvalidName(t *testing.T) {
	aText := "(x)=\n"
	a := newDoc(t, "a.md", aText)
	s := build(t, a)
	if edits := RenamePlan(s, a.Path, 1, "9bad name"); len(edits) != 0 {
		t.Errorf("edits = %+v", edits)
	}
}

func TestRenameHeadingUpdatesLinksAndRoles(t *testing.T) {
	aText := "# Old Title\n"
	bText := "[l](a.md#old-title) and {ref}`old-title`\n"
	a := newDoc(t, "a.md", aText)
	b := newDoc(t, "b.md", bText)
	s := build(t, a, b)

	edits := RenamePlan(s, a.Path, offsetOf(t, aText, "Old"), "New Title")
	if len(edits) != 3 {
		t.Fatalf("edits = %+v", edits)
	}
	text := map[string]string{a.Path: aText, b.Path: bText}
	applied := applyEdits(text, edits)
	if applied[a.Path] != "# New Title\n" {
		t.Errorf("a = %q", applied[a.Path])
	}
	if applied[b.Path] != "[l](a.md#new-title) and {ref}`new-title`\n" {
		t.Errorf("b = %q", applied[b.Path])
	}
}

func TestRenameTagIncludesNested(t *testing.T) {
	aText := "#work and #work/sub\n"
	a := newDoc(t, "a.md", aText)
	s := build(t, a)

	edits := RenamePlan(s, a.Path, offsetOf(t, aText, "#work")+1, "job")
	if len(edits) != 2 {
		t.Fatalf("edits = %+v", edits)
	}
	applied := applyEdits(map[string]string{a.Path: aText}, edits)
	if applied[a.Path] != "#job and #job/sub\n" {
		t.Errorf("a = %q", applied[a.Path])
	}
}

func TestDocumentSymbols(t *testing.T) {
	text := "# One\n\n(anchor-x)=\n\n## Two\n"
	d := newDoc(t, "d.md", text)
	s := build(t, d)

	syms := DocumentSymbols(s, d.Path)
	if len(syms) != 3 {
		t.Fatalf("symbols = %+v", syms)
	}
	if syms[0].Name != "One" || syms[1].Name != "anchor-x" || syms[2].Name != "Two" {
		t.Errorf("order = %+v", syms)
	}
}

func TestCodeActionCreateMissingFile(t *testing.T) {
	text := "[new](missing-doc)\n"
	d := newDoc(t, "d.md", text)
	s := build(t, d)

	actions := CodeActions(s, d.Path, offsetOf(t, text, "missing"), DefaultOptions(), "notes")
	if len(actions) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].CreateFilePath != "notes/missing-doc.md" {
		t.Errorf("path = %q", actions[0].CreateFilePath)
	}
}

func TestCodeActionAppendMissingHeading(t *testing.T) {
	aText := "# A\n"
	dText := "[l](a.md#missing-part)\n"
	a := newDoc(t, "a.md", aText)
	d := newDoc(t, "d.md", dText)
	s := build(t, a, d)

	actions := CodeActions(s, d.Path, offsetOf(t, dText, "missing"), DefaultOptions(), "")
	if len(actions) != 1 || len(actions[0].Edits) != 1 {
		t.Fatalf("actions = %+v", actions)
	}
	if actions[0].Edits[0].Path != a.Path || !strings.Contains(actions[0].Edits[0].NewText, "## missing-part") {
		t.Errorf("edit = %+v", actions[0].Edits[0])
	}
}

func TestCompletionContexts(t *testing.T) {
	v := newDoc(t, "guides/setup.md", "# Setup\n\n(conf)=\n")
	cases := []struct {
		text string
		want string
	}{
		{"```{no", "note"},
		{"{re", "ref"},
		{"{ref}`con", "conf"},
		{"[x](gui", "guides/setup"},
		{"[x](guides/setup#", "setup"},
		{"{{", ""},
	}
	for _, c := range cases {
		q := newDoc(t, "q.md", c.text+"\n")
		s := build(t, v, q)
		items := Completions(s, q.Path, len(c.text), DefaultOptions())
		if c.want == "" {
			continue
		}
		found := false
		for _, it := range items {
			if it.Label == c.want {
				found = true
			}
		}
		if !found {
			t.Errorf("prefix %q: want candidate %q in %+v", c.text, c.want, items)
		}
	}
}

func TestTagCompletion(t *testing.T) {
	a := newDoc(t, "a.md", "#work/project\n")
	qText := "text #wo\n"
	q := newDoc(t, "q.md", qText)
	s := build(t, a, q)

	items := Completions(s, q.Path, offsetOf(t, qText, "#wo")+3, DefaultOptions())
	found := false
	for _, it := range items {
		if it.Label == "work/project" {
			found = true
		}
	}
	if !found {
		t.Errorf("items = %+v", items)
	}
}

// applyEdits applies non-overlapping edits, rightmost first.
func applyEdits(docs map[string]string, edits []Edit) map[string]string {
	byPath := map[string][]Edit{}
	for _, e := range edits {
		byPath[e.Path] = append(byPath[e.Path], e)
	}
	out := map[string]string{}
	for p, text := range docs {
		es := byPath[p]
		for i := 0; i < len(es); i++ {
			for j := i + 1; j < len(es); j++ {
				if es[j].Span.Start > es[i].Span.Start {
					es[i], es[j] = es[j], es[i]
				}
			}
		}
		for _, e := range es {
			text = text[:e.Span.Start] + e.NewText + text[e.Span.End:]
		}
		out[p] = text
	}
	return out
}
