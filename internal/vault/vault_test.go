package vault

import (
	"path"
	"testing"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/rope"
)

const testRoot = "/vault"

func newDoc(t *testing.T, rel, text string) *Document {
	t.Helper()
	tree := parser.Parse(text, parser.DefaultOptions())
	return &Document{
		Path: path.Join(testRoot, rel),
		Rel:  rel,
		Rev:  1,
		Rope: rope.New(text),
		Ex:   extract.Extract(tree, extract.Config{}),
	}
}

func build(t *testing.T, docs ...*Document) *Snapshot {
	t.Helper()
	return New(testRoot, CaseSmart).WithDocuments(docs)
}

func findRef(t *testing.T, d *Document, kind extract.RefKind) extract.Reference {
	t.Helper()
	for _, r := range d.Ex.Refs {
		if r.Kind == kind {
			return r
		}
	}
	t.Fatalf("no reference of kind %v in %s", kind, d.Rel)
	return extract.Reference{}
}

func TestAnchorResolutionAcrossFiles(t *testing.T) {
	a := newDoc(t, "a.md", "(install)=\n# Installation\n")
	b := newDoc(t, "b.md", "See {ref}`install`.\n")
	s := build(t, a, b)

	ref := findRef(t, b, extract.RefRoleRef)
	got := s.Resolve(b, ref)
	if len(got) != 1 {
		t.Fatalf("candidates = %+v", got)
	}
	if got[0].Kind != TAnchor || got[0].Path != a.Path || got[0].Name != "install" {
		t.Errorf("resolved = %+v", got[0])
	}

	back := s.Backlinks(got[0].Key())
	if len(back) != 1 || back[0].Source != b.Path {
		t.Errorf("backlinks = %+v", back)
	}
}

func TestRefFallsBackToHeadingSlug(t *testing.T) {
	a := newDoc(t, "a.md", "# Getting Started\n")
	b := newDoc(t, "b.md", "{ref}`getting-started`\n")
	s := build(t, a, b)

	got := s.Resolve(b, findRef(t, b, extract.RefRoleRef))
	if len(got) != 1 || got[0].Kind != THeading {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestAnchorWinsOverSlug(t *testing.T) {
	a := newDoc(t, "a.md", "(setup)=\n# Something\n")
	b := newDoc(t, "b.md", "# Setup\n")
	c := newDoc(t, "c.md", "{ref}`setup`\n")
	s := build(t, a, b, c)

	got := s.Resolve(c, findRef(t, c, extract.RefRoleRef))
	if len(got) != 1 || got[0].Kind != TAnchor {
		t.Fatalf("anchor should win over heading slug: %+v", got)
	}
}

func TestFileLinkResolution(t *testing.T) {
	a := newDoc(t, "guides/setup.md", "# Setup\n")
	b := newDoc(t, "guides/intro.md", "[link](setup.md)\n")
	c := newDoc(t, "index.md", "[abs](/guides/setup)\n[stem](setup)\n")
	s := build(t, a, b, c)

	got := s.Resolve(b, findRef(t, b, extract.RefFileLink))
	if len(got) != 1 || got[0].Path != a.Path {
		t.Fatalf("relative link = %+v", got)
	}

	var abs, stem extract.Reference
	for _, r := range c.Ex.Refs {
		if r.Kind != extract.RefFileLink {
			continue
		}
		if r.Display == "abs" {
			abs = r
		} else {
			stem = r
		}
	}
	if got := s.Resolve(c, abs); len(got) != 1 || got[0].Path != a.Path {
		t.Errorf("absolute link = %+v", got)
	}
	if got := s.Resolve(c, stem); len(got) != 1 || got[0].Path != a.Path {
		t.Errorf("stem link = %+v", got)
	}
}

func TestStemCollisionOrdering(t *testing.T) {
	a := newDoc(t, "deep/nested/notes.md", "x\n")
	b := newDoc(t, "notes.md", "y\n")
	c := newDoc(t, "z.md", "[l](notes)\n")
	s := build(t, a, b, c)

	got := s.Resolve(c, findRef(t, c, extract.RefFileLink))
	if len(got) != 2 {
		t.Fatalf("candidates = %+v", got)
	}
	if got[0].Path != b.Path {
		t.Errorf("shortest path should win the tie-break: %+v", got)
	}
}

func TestCaseMatchingModes(t *testing.T) {
	a := newDoc(t, "Readme.md", "x\n")
	q := newDoc(t, "q.md", "[l](readme)\n[u](Readme)\n")

	lower := extract.Reference{}
	upper := extract.Reference{}
	for _, r := range q.Ex.Refs {
		if r.Display == "l" {
			lower = r
		} else if r.Display == "u" {
			upper = r
		}
	}

	smart := New(testRoot, CaseSmart).WithDocuments([]*Document{a, q})
	if got := smart.Resolve(q, lower); len(got) != 1 {
		t.Errorf("smart lower-case query should ignore case: %+v", got)
	}
	if got := smart.Resolve(q, upper); len(got) != 1 {
		t.Errorf("smart exact-case query should match exact: %+v", got)
	}

	respect := New(testRoot, CaseRespect).WithDocuments([]*Document{a, q})
	if got := respect.Resolve(q, lower); len(got) != 0 {
		t.Errorf("respect should not match different case: %+v", got)
	}

	ignore := New(testRoot, CaseIgnore).WithDocuments([]*Document{a, q})
	if got := ignore.Resolve(q, lower); len(got) != 1 {
		t.Errorf("ignore should match: %+v", got)
	}
}

func TestHeadingLinkResolution(t *testing.T) {
	a := newDoc(t, "a.md", "# One\n\n## Getting Started\n")
	b := newDoc(t, "b.md", "[l](a.md#getting-started)\n")
	s := build(t, a, b)

	got := s.Resolve(b, findRef(t, b, extract.RefHeadingLink))
	if len(got) != 1 || got[0].Kind != THeading || got[0].Text != "Getting Started" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestBlockLinkResolution(t *testing.T) {
	a := newDoc(t, "a.md", "A key insight. ^insight\n")
	b := newDoc(t, "b.md", "[l](a.md#^insight)\n")
	s := build(t, a, b)

	got := s.Resolve(b, findRef(t, b, extract.RefBlockLink))
	if len(got) != 1 || got[0].Kind != TBlock || got[0].Name != "insight" {
		t.Fatalf("candidates = %+v", got)
	}
}

func TestGlossaryTermResolution(t *testing.T) {
	g := newDoc(t, "g.md", "```{glossary}\nMyST\n  Markedly Structured Text.\n```\n")
	h := newDoc(t, "h.md", "See {term}`MyST`.\n")
	s := build(t, g, h)

	got := s.Resolve(h, findRef(t, h, extract.RefRoleTerm))
	if len(got) != 1 || got[0].Kind != TGlossary || got[0].Text != "Markedly Structured Text." {
		t.Fatalf("candidates = %+v", got)
	}
	// Terms are case-sensitive.
	bad := newDoc(t, "i.md", "{term}`myst`\n")
	s = s.WithDocument(bad)
	if got := s.Resolve(bad, findRef(t, bad, extract.RefRoleTerm)); len(got) != 0 {
		t.Errorf("lower-case term should not match: %+v", got)
	}
}

func TestEqAndNumrefResolution(t *testing.T) {
	m := newDoc(t, "m.md", "```{math}\n:label: euler\ne\n```\n\n```{figure} x.png\n:name: fig-1\n```\n")
	q := newDoc(t, "q.md", "{eq}`euler` {numref}`fig-1` {numref}`euler`\n")
	s := build(t, m, q)

	if got := s.Resolve(q, findRef(t, q, extract.RefRoleEq)); len(got) != 1 || got[0].Kind != TMath {
		t.Fatalf("eq = %+v", got)
	}
	var numrefs []extract.Reference
	for _, r := range q.Ex.Refs {
		if r.Kind == extract.RefRoleNumref {
			numrefs = append(numrefs, r)
		}
	}
	if len(numrefs) != 2 {
		t.Fatalf("numrefs = %d", len(numrefs))
	}
	if got := s.Resolve(q, numrefs[0]); len(got) != 1 || got[0].Kind != TFigure {
		t.Errorf("numref fig = %+v", got)
	}
	if got := s.Resolve(q, numrefs[1]); len(got) != 1 || got[0].Kind != TMath {
		t.Errorf("numref math fallback = %+v", got)
	}
}

func TestFootnoteScopedToDocument(t *testing.T) {
	a := newDoc(t, "a.md", "Claim.[^1]\n\n[^1]: Local source.\n")
	b := newDoc(t, "b.md", "Other claim.[^1]\n")
	s := build(t, a, b)

	if got := s.Resolve(a, findRef(t, a, extract.RefFootnote)); len(got) != 1 || got[0].Path != a.Path {
		t.Errorf("a footnote = %+v", got)
	}
	if got := s.Resolve(b, findRef(t, b, extract.RefFootnote)); len(got) != 0 {
		t.Errorf("b footnote should not cross documents: %+v", got)
	}
}

func TestTagNesting(t *testing.T) {
	a := newDoc(t, "a.md", "#work/project/alpha\n")
	b := newDoc(t, "b.md", "#work\n")
	s := build(t, a, b)

	if sites := s.TagSites("work"); len(sites) != 2 {
		t.Errorf("work sites = %+v", sites)
	}
	if sites := s.TagSites("work/project"); len(sites) != 1 {
		t.Errorf("work/project sites = %+v", sites)
	}
	if sites := s.TagSites("alpha"); len(sites) != 0 {
		t.Errorf("alpha sites = %+v", sites)
	}
}

func TestBacklinkDuality(t *testing.T) {
	a := newDoc(t, "a.md", "(x)=\n# X\n")
	b := newDoc(t, "b.md", "{ref}`x` and [f](a.md)\n")
	s := build(t, a, b)

	for _, e := range s.Edges(b.Path) {
		found := false
		for _, back := range s.Backlinks(e.Target.Key()) {
			if back == e {
				found = true
			}
		}
		if !found {
			t.Errorf("edge %+v missing from backlink index", e)
		}
	}
}

func TestTransclusionCycleRejected(t *testing.T) {
	a := newDoc(t, "a.md", "```{include} b.md\n```\n")
	b := newDoc(t, "b.md", "```{include} a.md\n```\n")
	s := build(t, a, b)

	// a.md commits first (sorted order); b.md's include would close the
	// cycle and must be absent.
	var bToA bool
	for _, e := range s.Edges(b.Path) {
		if e.Kind == EdgeTransclusion && e.Target.Path == a.Path {
			bToA = true
		}
	}
	if bToA {
		t.Error("transclusion edge b->a should have been rejected")
	}
	if len(s.CycleRefs(a.Path)) == 0 {
		t.Error("a.md should carry a cycle diagnostic")
	}
	if len(s.CycleRefs(b.Path)) == 0 {
		t.Error("b.md should carry a cycle diagnostic")
	}
}

func TestTransclusionLongerCycle(t *testing.T) {
	a := newDoc(t, "a.md", "```{include} b.md\n```\n")
	b := newDoc(t, "b.md", "```{include} c.md\n```\n")
	c := newDoc(t, "c.md", "```{include} a.md\n```\n")
	s := build(t, a, b, c)

	// Exactly one of the three edges is rejected; the subgraph stays acyclic.
	edgeCount := 0
	for _, d := range []*Document{a, b, c} {
		for _, e := range s.Edges(d.Path) {
			if e.Kind == EdgeTransclusion {
				edgeCount++
			}
		}
	}
	if edgeCount != 2 {
		t.Errorf("transclusion edges = %d, want 2", edgeCount)
	}
}

func TestIncrementalUpdateResolvesPending(t *testing.T) {
	a := newDoc(t, "a.md", "# A\n")
	b := newDoc(t, "b.md", "{ref}`target`\n")
	s := build(t, a, b)

	if got := s.Resolve(b, findRef(t, b, extract.RefRoleRef)); len(got) != 0 {
		t.Fatalf("should be unresolved: %+v", got)
	}

	a2 := newDoc(t, "a.md", "(target)=\n# A\n")
	a2.Rev = 2
	s2 := s.WithDocument(a2)

	if got := s2.Resolve(b, findRef(t, b, extract.RefRoleRef)); len(got) != 1 {
		t.Fatalf("should resolve after update: %+v", got)
	}
	// b's edge must have been re-committed without touching b itself.
	if len(s2.Edges(b.Path)) != 1 {
		t.Errorf("edges of b = %+v", s2.Edges(b.Path))
	}
	// The old snapshot is untouched.
	if len(s.Edges(b.Path)) != 0 {
		t.Errorf("old snapshot mutated")
	}
	if s2.Version() <= s.Version() {
		t.Errorf("version did not increase")
	}
}

func TestDeleteReresolvesSources(t *testing.T) {
	a := newDoc(t, "a.md", "(x)=\n")
	b := newDoc(t, "b.md", "{ref}`x`\n")
	s := build(t, a, b)
	if len(s.Edges(b.Path)) != 1 {
		t.Fatalf("precondition: b resolved")
	}

	s2 := s.WithoutDocument(a.Path)
	if s2.Doc(a.Path) != nil {
		t.Error("a.md still present")
	}
	if len(s2.Edges(b.Path)) != 0 {
		t.Errorf("stale edge survived deletion: %+v", s2.Edges(b.Path))
	}
}

func TestAliasResolution(t *testing.T) {
	a := newDoc(t, "notes/2024-plan.md", "---\naliases: [\"Roadmap\"]\n---\n# Plan\n")
	b := newDoc(t, "b.md", "[l](Roadmap)\n")
	s := build(t, a, b)

	if got := s.Resolve(b, findRef(t, b, extract.RefFileLink)); len(got) != 1 || got[0].Path != a.Path {
		t.Errorf("alias resolution = %+v", got)
	}
}

func TestStructureEdgeCaption(t *testing.T) {
	idx := newDoc(t, "index.md", "```{toctree}\n:caption: Guides\n\na\n```\n")
	a := newDoc(t, "a.md", "# A\n")
	s := build(t, idx, a)

	edges := s.Edges(idx.Path)
	if len(edges) != 1 || edges[0].Kind != EdgeStructure {
		t.Fatalf("edges = %+v", edges)
	}
	if edges[0].Caption != "Guides" {
		t.Errorf("caption = %q", edges[0].Caption)
	}
}
