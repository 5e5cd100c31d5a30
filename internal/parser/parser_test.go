package parser

import (
	"strings"
	"testing"
)

func parseDefault(t *testing.T, text string) *Tree {
	t.Helper()
	return Parse(text, DefaultOptions())
}

func TestDirectiveLift(t *testing.T) {
	text := "```{note}\nBody text.\n```\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 1 {
		t.Fatalf("directives = %d, want 1", len(tree.Directives))
	}
	d := tree.Directives[0]
	if d.Name != "note" {
		t.Errorf("name = %q", d.Name)
	}
	if got := text[d.Span.Start:d.Span.End]; got != text {
		t.Errorf("span slice = %q, want whole block", got)
	}
	if got := text[d.BodySpan.Start:d.BodySpan.End]; got != "Body text.\n" {
		t.Errorf("body slice = %q", got)
	}
}

func TestDirectiveArgsAndColonOptions(t *testing.T) {
	text := "```{figure} image.png\n:width: 80%\n:label: my-figure\n\nCaption\n```\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 1 {
		t.Fatalf("directives = %d, want 1", len(tree.Directives))
	}
	d := tree.Directives[0]
	if d.Args != "image.png" {
		t.Errorf("args = %q", d.Args)
	}
	if len(d.Options) != 2 || d.Options[0].Key != "width" || d.Options[1].Value != "my-figure" {
		t.Errorf("options = %v", d.Options)
	}
	if label, ok := d.Label(); !ok || label != "my-figure" {
		t.Errorf("label = %q, %v", label, ok)
	}
	if body := text[d.BodySpan.Start:d.BodySpan.End]; !strings.Contains(body, "Caption") || strings.Contains(body, "label") {
		t.Errorf("body = %q", body)
	}
}

func TestDirectiveLabelPriority(t *testing.T) {
	text := "```{figure} x.png\n:label: from-label\n:name: from-name\n```\n"
	d := parseDefault(t, text).Directives[0]
	if label, _ := d.Label(); label != "from-label" {
		t.Errorf("label = %q, want from-label", label)
	}
}

func TestDirectiveYAMLOptions(t *testing.T) {
	text := "```{figure} x.png\n---\nwidth: 80%\nname: fig-x\n---\nCaption\n```\n"
	d := parseDefault(t, text).Directives[0]
	if len(d.Options) != 2 {
		t.Fatalf("options = %v", d.Options)
	}
	if d.Options[0].Key != "width" || d.Options[1].Key != "name" || d.Options[1].Value != "fig-x" {
		t.Errorf("options = %v", d.Options)
	}
}

func TestDirectiveMalformedYAMLYieldsNoOptions(t *testing.T) {
	text := "```{figure} x.png\n---\n: bad: [yaml\n---\nCaption\n```\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 1 {
		t.Fatalf("directive should survive malformed YAML")
	}
	if len(tree.Directives[0].Options) != 0 {
		t.Errorf("options = %v, want none", tree.Directives[0].Options)
	}
}

func TestNonDirectiveFenceStaysLiteral(t *testing.T) {
	text := "```python\nprint('hi')\n```\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 0 {
		t.Fatalf("directives = %d, want 0", len(tree.Directives))
	}
	if len(tree.Literal) != 1 {
		t.Fatalf("literal regions = %d, want 1", len(tree.Literal))
	}
}

func TestNestedDirectives(t *testing.T) {
	text := "````{note}\nouter\n```{warning}\ninner\n```\n````\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 1 {
		t.Fatalf("top-level directives = %d, want 1", len(tree.Directives))
	}
	outer := tree.Directives[0]
	if outer.Name != "note" {
		t.Errorf("outer = %q", outer.Name)
	}
	if len(outer.Children) != 1 || outer.Children[0].Name != "warning" {
		t.Fatalf("children = %v", outer.Children)
	}
}

func TestColonFenceDirective(t *testing.T) {
	text := ":::{note}\nSome *body*.\n:::\n"
	tree := parseDefault(t, text)
	if len(tree.Directives) != 1 {
		t.Fatalf("directives = %d, want 1", len(tree.Directives))
	}
	d := tree.Directives[0]
	if d.Name != "note" || d.Fence != FenceColon {
		t.Errorf("directive = %+v", d)
	}
}

func TestColonFenceDisabled(t *testing.T) {
	tree := Parse(":::{note}\nbody\n:::\n", Options{ColonFence: false})
	if len(tree.Directives) != 0 {
		t.Errorf("directives = %d, want 0 with colon_fence off", len(tree.Directives))
	}
}

func TestRoleParsing(t *testing.T) {
	text := "See {ref}`install` for setup.\n"
	tree := parseDefault(t, text)
	if len(tree.Roles) != 1 {
		t.Fatalf("roles = %d, want 1", len(tree.Roles))
	}
	r := tree.Roles[0]
	if r.Name != "ref" || r.Target != "install" || r.Display != "" {
		t.Errorf("role = %+v", r)
	}
	if got := text[r.Span.Start:r.Span.End]; got != "{ref}`install`" {
		t.Errorf("span slice = %q", got)
	}
}

func TestRoleDisplayTarget(t *testing.T) {
	text := "See {ref}`the guide <install>`.\n"
	r := parseDefault(t, text).Roles[0]
	if r.Target != "install" || r.Display != "the guide" {
		t.Errorf("role = %+v", r)
	}
	if got := text[r.TargetSpan.Start:r.TargetSpan.End]; got != "install" {
		t.Errorf("target slice = %q", got)
	}
}

func TestRoleInsideLiteralDirectiveFlagged(t *testing.T) {
	text := "```{code-block}\n{ref}`hidden`\n```\n\n{ref}`visible`\n"
	tree := parseDefault(t, text)
	if len(tree.Roles) != 2 {
		t.Fatalf("roles = %d, want 2", len(tree.Roles))
	}
	byTarget := map[string]Role{}
	for _, r := range tree.Roles {
		byTarget[r.Target] = r
	}
	if !byTarget["hidden"].InCode {
		t.Errorf("hidden role should be flagged InCode")
	}
	if byTarget["visible"].InCode {
		t.Errorf("visible role should not be flagged InCode")
	}
}

func TestRoleInsideAdmonitionBodyKept(t *testing.T) {
	text := "```{note}\nSee {ref}`target`.\n```\n"
	tree := parseDefault(t, text)
	if len(tree.Roles) != 1 || tree.Roles[0].InCode {
		t.Fatalf("roles = %+v", tree.Roles)
	}
}

func TestRoleInsideCodeSpanFlagged(t *testing.T) {
	text := "Use `` {ref}`x` `` syntax.\n"
	tree := parseDefault(t, text)
	if len(tree.Roles) != 1 {
		t.Fatalf("roles = %d", len(tree.Roles))
	}
	if !tree.Roles[0].InCode {
		t.Errorf("role inside code span should be flagged InCode")
	}
}

func TestAnchorLine(t *testing.T) {
	text := "(install)=\n# Installation\n"
	tree := parseDefault(t, text)
	if len(tree.Anchors) != 1 {
		t.Fatalf("anchors = %d, want 1", len(tree.Anchors))
	}
	a := tree.Anchors[0]
	if a.Name != "install" {
		t.Errorf("anchor = %+v", a)
	}
	if got := text[a.Span.Start:a.Span.End]; got != "(install)=" {
		t.Errorf("span slice = %q", got)
	}
}

func TestAnchorNotInRunningText(t *testing.T) {
	tree := parseDefault(t, "some text (not-an-anchor)= more\n")
	if len(tree.Anchors) != 0 {
		t.Errorf("anchors = %v, want none", tree.Anchors)
	}
}

func TestHeadings(t *testing.T) {
	text := "# Top\n\ntext\n\n## Sub heading\n"
	tree := parseDefault(t, text)
	if len(tree.Headings) != 2 {
		t.Fatalf("headings = %d, want 2", len(tree.Headings))
	}
	if tree.Headings[0].Level != 1 || tree.Headings[0].Text != "Top" {
		t.Errorf("h0 = %+v", tree.Headings[0])
	}
	if tree.Headings[1].Level != 2 || tree.Headings[1].Text != "Sub heading" {
		t.Errorf("h1 = %+v", tree.Headings[1])
	}
}

func TestLinks(t *testing.T) {
	text := "See [the doc](other.md#setup) and ![img](pic.png).\n"
	tree := parseDefault(t, text)
	if len(tree.Links) != 2 {
		t.Fatalf("links = %d, want 2", len(tree.Links))
	}
	if tree.Links[0].Target != "other.md#setup" || tree.Links[0].Display != "the doc" || tree.Links[0].Image {
		t.Errorf("link = %+v", tree.Links[0])
	}
	if !tree.Links[1].Image {
		t.Errorf("image link not flagged: %+v", tree.Links[1])
	}
}

func TestTags(t *testing.T) {
	text := "Work on #project/alpha today. `#not-a-tag`\n"
	tree := parseDefault(t, text)
	var kept []Tag
	for _, tag := range tree.Tags {
		if !tag.InCode {
			kept = append(kept, tag)
		}
	}
	if len(kept) != 1 || kept[0].Name != "project/alpha" {
		t.Errorf("tags = %+v", kept)
	}
}

func TestSubstitutionRef(t *testing.T) {
	tree := parseDefault(t, "Version {{ version }} is out.\n")
	if len(tree.Subs) != 1 || tree.Subs[0].Name != "version" {
		t.Fatalf("subs = %+v", tree.Subs)
	}
}

func TestFootnoteRefVsDef(t *testing.T) {
	text := "A claim.[^1]\n\n[^1]: The source.\n"
	tree := parseDefault(t, text)
	if len(tree.Footnotes) != 1 {
		t.Fatalf("footnote refs = %d, want 1 (definition excluded)", len(tree.Footnotes))
	}
	if tree.Footnotes[0].ID != "^1" {
		t.Errorf("id = %q", tree.Footnotes[0].ID)
	}
}

func TestCommentLine(t *testing.T) {
	text := "% hidden {ref}`x`\nvisible\n"
	tree := parseDefault(t, text)
	if len(tree.Comments) != 1 {
		t.Fatalf("comments = %d, want 1", len(tree.Comments))
	}
	if len(tree.Roles) != 1 || !tree.Roles[0].InComment {
		t.Errorf("role in comment should be flagged: %+v", tree.Roles)
	}
}

func TestFrontmatterSuppressed(t *testing.T) {
	text := "---\ntitle: X\ntags: [a]\n---\n\n#real-tag\n"
	tree := parseDefault(t, text)
	for _, tag := range tree.Tags {
		if tag.Name != "real-tag" {
			t.Errorf("unexpected tag from frontmatter: %+v", tag)
		}
	}
}

func TestRangeRoundTrip(t *testing.T) {
	text := "(a)=\n# Head\n\nSee {ref}`a` and [x](y.md).\n\n```{note}\nbody\n```\n"
	tree := parseDefault(t, text)
	check := func(kind string, s Span) {
		t.Helper()
		if s.Start < 0 || s.End > len(text) || s.Start > s.End {
			t.Errorf("%s span out of bounds: %+v", kind, s)
		}
	}
	for _, r := range tree.Roles {
		check("role", r.Span)
	}
	for _, l := range tree.Links {
		check("link", l.Span)
	}
	for _, a := range tree.Anchors {
		check("anchor", a.Span)
	}
	for _, h := range tree.Headings {
		check("heading", h.Span)
	}
	for _, d := range tree.Directives {
		check("directive", d.Span)
	}
}

func TestParseNeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		"",
		"```{",
		"```{note}",
		":::{x}\nnever closed",
		"[unclosed](link",
		"--- \n not frontmatter",
		strings.Repeat("`", 100),
	}
	for _, in := range inputs {
		_ = Parse(in, DefaultOptions())
	}
}
