package vault

import (
	"path"
	"sort"
	"strings"

	"github.com/starford/moxide/internal/extract"
)

// Snapshot is a read-consistent view of the vault at one version. All maps
// are private and reached through accessors; mutating operations return a
// new Snapshot that shares unchanged documents with the receiver.
type Snapshot struct {
	version  uint64
	root     string
	caseMode Case

	docs  map[string]*Document // canonical path -> doc
	byRel map[string]*Document

	anchors    map[string][]Referenceable // lower-case name -> anchors
	slugs      map[string][]Referenceable // slug -> headings
	glossary   map[string][]Referenceable // exact term -> terms
	math       map[string][]Referenceable // lower-case label -> math
	figures    map[string][]Referenceable // lower-case name -> figures
	tags       map[string][]Referenceable // exact tag -> occurrences
	stems      map[string][]string        // exact stem/alias -> canonical paths
	stemsLower map[string][]string        // lower-cased stem/alias -> canonical paths

	edges     map[string][]*Edge // by source path
	backlinks map[Key][]*Edge
	cycles    map[string][]extract.Reference
}

// New creates an empty snapshot for the given vault root.
func New(root string, caseMode Case) *Snapshot {
	s := &Snapshot{root: root, caseMode: caseMode}
	s.initMaps()
	return s
}

func (s *Snapshot) initMaps() {
	s.docs = map[string]*Document{}
	s.byRel = map[string]*Document{}
	s.anchors = map[string][]Referenceable{}
	s.slugs = map[string][]Referenceable{}
	s.glossary = map[string][]Referenceable{}
	s.math = map[string][]Referenceable{}
	s.figures = map[string][]Referenceable{}
	s.tags = map[string][]Referenceable{}
	s.stems = map[string][]string{}
	s.stemsLower = map[string][]string{}
	s.edges = map[string][]*Edge{}
	s.backlinks = map[Key][]*Edge{}
	s.cycles = map[string][]extract.Reference{}
}

// Version returns the snapshot's monotonically increasing version.
func (s *Snapshot) Version() uint64 { return s.version }

// Root returns the vault root directory.
func (s *Snapshot) Root() string { return s.root }

// Doc returns the document at the canonical path.
func (s *Snapshot) Doc(p string) *Document { return s.docs[p] }

// DocByRel returns the document at the root-relative path.
func (s *Snapshot) DocByRel(rel string) *Document { return s.byRel[rel] }

// Docs returns every document. The returned map must not be mutated.
func (s *Snapshot) Docs() map[string]*Document { return s.docs }

// Edges returns the outgoing edges of the given source document.
func (s *Snapshot) Edges(source string) []*Edge { return s.edges[source] }

// Backlinks returns the edges pointing at the given target identity.
func (s *Snapshot) Backlinks(k Key) []*Edge { return s.backlinks[k] }

// CycleRefs returns the include references of a document that would close a
// transclusion cycle.
func (s *Snapshot) CycleRefs(source string) []extract.Reference { return s.cycles[source] }

// TagSites returns every tag occurrence matched by name under the tag
// nesting rules: tag a/b/c is matched by a, a/b and a/b/c.
func (s *Snapshot) TagSites(name string) []Referenceable {
	var out []Referenceable
	for tag, sites := range s.tags {
		if tag == name || strings.HasPrefix(tag, name+"/") {
			out = append(out, sites...)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Span.Start < out[j].Span.Start
	})
	return out
}

// AnchorNames returns every anchor name in the vault, for completion.
func (s *Snapshot) AnchorNames() []string { return collectNames(s.anchors) }

// SlugNames returns every heading slug in the vault.
func (s *Snapshot) SlugNames() []string { return collectNames(s.slugs) }

// GlossaryTerms returns every glossary term.
func (s *Snapshot) GlossaryTerms() []string { return collectNames(s.glossary) }

// MathLabels returns every labeled-math name.
func (s *Snapshot) MathLabels() []string { return collectNames(s.math) }

// FigureLabels returns every labeled-figure name.
func (s *Snapshot) FigureLabels() []string { return collectNames(s.figures) }

// TagNames returns every distinct tag.
func (s *Snapshot) TagNames() []string { return collectNames(s.tags) }

func collectNames[T any](m map[string][]T) []string {
	out := make([]string, 0, len(m))
	for name, entries := range m {
		if len(entries) == 0 {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup helpers used by the resolver and queries.

func (s *Snapshot) anchorsNamed(name string) []Referenceable {
	return s.anchors[strings.ToLower(name)]
}

func (s *Snapshot) headingsSlugged(slug string) []Referenceable {
	return s.slugs[strings.ToLower(slug)]
}

func (s *Snapshot) glossaryNamed(term string) []Referenceable { return s.glossary[term] }

func (s *Snapshot) mathNamed(label string) []Referenceable {
	return s.math[strings.ToLower(label)]
}

func (s *Snapshot) figuresNamed(name string) []Referenceable {
	return s.figures[strings.ToLower(name)]
}

// clone makes a shallow copy of every top-level map; per-key slices are
// replaced, never mutated, so older snapshots stay valid.
func (s *Snapshot) clone() *Snapshot {
	ns := &Snapshot{version: s.version + 1, root: s.root, caseMode: s.caseMode}
	ns.docs = copyMap(s.docs)
	ns.byRel = copyMap(s.byRel)
	ns.anchors = copyMap(s.anchors)
	ns.slugs = copyMap(s.slugs)
	ns.glossary = copyMap(s.glossary)
	ns.math = copyMap(s.math)
	ns.figures = copyMap(s.figures)
	ns.tags = copyMap(s.tags)
	ns.stems = copyMap(s.stems)
	ns.stemsLower = copyMap(s.stemsLower)
	ns.edges = copyMap(s.edges)
	ns.backlinks = copyMap(s.backlinks)
	ns.cycles = copyMap(s.cycles)
	return ns
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithDocuments bulk-inserts documents and resolves the whole graph once.
// Used for initial indexing and full reindexes.
func (s *Snapshot) WithDocuments(docs []*Document) *Snapshot {
	ns := s.clone()
	for _, d := range docs {
		if old := ns.docs[d.Path]; old != nil {
			ns.removeContributions(old)
		}
		ns.docs[d.Path] = d
		ns.byRel[d.Rel] = d
		ns.addContributions(d)
	}
	ns.resolveAll()
	return ns
}

// WithDocument commits one document revision. The rebuild is confined to
// the document plus the bounded set of sources whose resolution could have
// changed: docs with unresolved references, docs with edges into this
// document, and docs flagged with include cycles.
func (s *Snapshot) WithDocument(d *Document) *Snapshot {
	ns := s.clone()
	if old := ns.docs[d.Path]; old != nil {
		ns.removeContributions(old)
		if old.Rel != d.Rel {
			delete(ns.byRel, old.Rel)
		}
	}
	ns.docs[d.Path] = d
	ns.byRel[d.Rel] = d
	ns.addContributions(d)

	affected := ns.affectedSources(d.Path)
	ns.rebuildEdges(d)
	for _, p := range affected {
		if p == d.Path {
			continue
		}
		if doc := ns.docs[p]; doc != nil {
			ns.rebuildEdges(doc)
		}
	}
	return ns
}

// WithoutDocument removes a document. Sources pointing into it are
// re-resolved in the same commit so the graph-consistency invariant holds.
func (s *Snapshot) WithoutDocument(p string) *Snapshot {
	old := s.docs[p]
	if old == nil {
		return s
	}
	ns := s.clone()
	affected := ns.affectedSources(p)
	ns.removeContributions(old)
	ns.removeEdges(p)
	delete(ns.docs, p)
	delete(ns.byRel, old.Rel)
	delete(ns.cycles, p)
	for _, src := range affected {
		if src == p {
			continue
		}
		if doc := ns.docs[src]; doc != nil {
			ns.rebuildEdges(doc)
		}
	}
	return ns
}

// affectedSources lists documents whose edges may change when p changes:
// sources of edges targeting p, docs holding unresolved references, and
// docs with recorded include cycles.
func (s *Snapshot) affectedSources(p string) []string {
	seen := map[string]struct{}{}
	for key, edges := range s.backlinks {
		if key.Path != p {
			continue
		}
		for _, e := range edges {
			seen[e.Source] = struct{}{}
		}
	}
	for src := range s.cycles {
		seen[src] = struct{}{}
	}
	for docPath, doc := range s.docs {
		if docPath == p {
			continue
		}
		if s.hasUnresolved(doc) {
			seen[docPath] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// hasUnresolved reports whether any resolvable reference of doc currently
// has zero committed edges.
func (s *Snapshot) hasUnresolved(doc *Document) bool {
	resolved := map[parserSpan]bool{}
	for _, e := range s.edges[doc.Path] {
		resolved[parserSpan(e.Ref.Span)] = true
	}
	for _, r := range doc.Ex.Refs {
		if edgeKindFor(r.Kind) == nil {
			continue
		}
		if !resolved[parserSpan(r.Span)] {
			return true
		}
	}
	return false
}

type parserSpan struct{ Start, End int }

func (s *Snapshot) resolveAll() {
	s.edges = map[string][]*Edge{}
	s.backlinks = map[Key][]*Edge{}
	s.cycles = map[string][]extract.Reference{}
	paths := make([]string, 0, len(s.docs))
	for p := range s.docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		s.buildEdges(s.docs[p])
	}
}

func (s *Snapshot) rebuildEdges(d *Document) {
	s.removeEdges(d.Path)
	delete(s.cycles, d.Path)
	s.buildEdges(d)
}

func (s *Snapshot) removeEdges(source string) {
	for _, e := range s.edges[source] {
		k := e.Target.Key()
		s.backlinks[k] = filterEdges(s.backlinks[k], source)
		if len(s.backlinks[k]) == 0 {
			delete(s.backlinks, k)
		}
	}
	delete(s.edges, source)
}

func filterEdges(edges []*Edge, source string) []*Edge {
	out := make([]*Edge, 0, len(edges))
	for _, e := range edges {
		if e.Source != source {
			out = append(out, e)
		}
	}
	return out
}

// edgeKindFor maps a reference kind onto its edge kind; nil means the kind
// never produces graph edges (tags, images, unknown roles).
func edgeKindFor(k extract.RefKind) *EdgeKind {
	var ek EdgeKind
	switch k {
	case extract.RefInclude:
		ek = EdgeTransclusion
	case extract.RefTocEntry:
		ek = EdgeStructure
	case extract.RefTag, extract.RefImage, extract.RefRoleOther:
		return nil
	default:
		ek = EdgeReference
	}
	return &ek
}

func (s *Snapshot) buildEdges(d *Document) {
	for _, ref := range d.Ex.Refs {
		kind := edgeKindFor(ref.Kind)
		if kind == nil {
			continue
		}
		cands := s.Resolve(d, ref)
		if len(cands) == 0 {
			continue
		}
		if *kind == EdgeTransclusion {
			if cycle := s.transclusionCycle(d.Path, cands[0].Path); cycle != nil {
				s.markCycle(append(cycle, d.Path), d.Path, ref)
				continue
			}
		}
		for _, c := range cands {
			e := &Edge{
				Kind:       *kind,
				Source:     d.Path,
				Ref:        ref,
				Target:     c,
				Caption:    captionFor(ref),
				ResolvedAt: d.Rev,
			}
			s.edges[d.Path] = append(s.edges[d.Path], e)
			k := c.Key()
			s.backlinks[k] = append(append([]*Edge{}, s.backlinks[k]...), e)
		}
	}
}

func captionFor(ref extract.Reference) string {
	if ref.Kind == extract.RefTocEntry {
		return ref.Display
	}
	return ""
}

// transclusionCycle returns the document chain from `to` back to `from`
// along Transclusion edges, or nil when adding from->to keeps the subgraph
// acyclic.
func (s *Snapshot) transclusionCycle(from, to string) []string {
	if from == to {
		return []string{to}
	}
	visited := map[string]bool{}
	var dfs func(cur string, trail []string) []string
	dfs = func(cur string, trail []string) []string {
		if visited[cur] {
			return nil
		}
		visited[cur] = true
		trail = append(trail, cur)
		for _, e := range s.edges[cur] {
			if e.Kind != EdgeTransclusion {
				continue
			}
			next := e.Target.Path
			if next == from {
				return append([]string{}, trail...)
			}
			if found := dfs(next, trail); found != nil {
				return found
			}
		}
		return nil
	}
	return dfs(to, nil)
}

// markCycle records the offending include references on every document that
// participates in the cycle, so diagnostics surface on each member.
func (s *Snapshot) markCycle(members []string, origin string, originRef extract.Reference) {
	inCycle := map[string]bool{}
	for _, m := range members {
		inCycle[m] = true
	}
	s.cycles[origin] = appendRefOnce(s.cycles[origin], originRef)
	for _, m := range members {
		doc := s.docs[m]
		if doc == nil || m == origin {
			continue
		}
		for _, r := range doc.Ex.Refs {
			if r.Kind != extract.RefInclude {
				continue
			}
			for _, c := range s.Resolve(doc, r) {
				if inCycle[c.Path] || c.Path == origin {
					s.cycles[m] = appendRefOnce(s.cycles[m], r)
				}
			}
		}
	}
}

func appendRefOnce(refs []extract.Reference, r extract.Reference) []extract.Reference {
	for _, have := range refs {
		if have.Span == r.Span {
			return refs
		}
	}
	return append(append([]extract.Reference{}, refs...), r)
}

// --- index contributions ---

func (s *Snapshot) addContributions(d *Document) {
	ex := d.Ex
	for _, r := range DocTargets(d) {
		switch r.Kind {
		case THeading:
			addIndexed(s.slugs, r.Name, r)
		case TAnchor:
			addIndexed(s.anchors, strings.ToLower(r.Name), r)
		case TGlossary:
			addIndexed(s.glossary, r.Name, r)
		case TMath:
			addIndexed(s.math, strings.ToLower(r.Name), r)
		case TFigure:
			addIndexed(s.figures, strings.ToLower(r.Name), r)
		case TTag:
			addIndexed(s.tags, r.Name, r)
		}
	}
	names := []string{d.Stem()}
	if ex.Front != nil {
		names = append(names, ex.Front.Aliases...)
	}
	for _, n := range names {
		s.stems[n] = insertSorted(s.stems[n], d, s)
		low := strings.ToLower(n)
		s.stemsLower[low] = insertSorted(s.stemsLower[low], d, s)
	}
}

func (s *Snapshot) removeContributions(d *Document) {
	removeByPath := func(m map[string][]Referenceable) {
		for key, list := range m {
			var touched bool
			for _, r := range list {
				if r.Path == d.Path {
					touched = true
					break
				}
			}
			if !touched {
				continue
			}
			kept := make([]Referenceable, 0, len(list))
			for _, r := range list {
				if r.Path != d.Path {
					kept = append(kept, r)
				}
			}
			if len(kept) == 0 {
				delete(m, key)
			} else {
				m[key] = kept
			}
		}
	}
	removeByPath(s.slugs)
	removeByPath(s.anchors)
	removeByPath(s.glossary)
	removeByPath(s.math)
	removeByPath(s.figures)
	removeByPath(s.tags)

	for _, m := range []map[string][]string{s.stems, s.stemsLower} {
		for key, paths := range m {
			kept := make([]string, 0, len(paths))
			for _, p := range paths {
				if p != d.Path {
					kept = append(kept, p)
				}
			}
			if len(kept) == 0 {
				delete(m, key)
			} else if len(kept) != len(paths) {
				m[key] = kept
			}
		}
	}
}

// insertSorted keeps stem candidate lists ordered by shortest relative path
// then lexicographically, the tie-break for stem collisions.
func insertSorted(paths []string, d *Document, s *Snapshot) []string {
	out := make([]string, 0, len(paths)+1)
	out = append(out, paths...)
	for _, p := range out {
		if p == d.Path {
			return out
		}
	}
	out = append(out, d.Path)
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i], out[j]
		if di, dj := s.docs[ri], s.docs[rj]; di != nil && dj != nil {
			if len(di.Rel) != len(dj.Rel) {
				return len(di.Rel) < len(dj.Rel)
			}
			return di.Rel < dj.Rel
		}
		return ri < rj
	})
	return out
}

func addIndexed(m map[string][]Referenceable, key string, r Referenceable) {
	m[key] = append(append([]Referenceable{}, m[key]...), r)
}

// DocTargets enumerates every referenceable defined by a document, in
// document order within each kind.
func DocTargets(d *Document) []Referenceable {
	ex := d.Ex
	var out []Referenceable
	out = append(out, Referenceable{Kind: TFile, Path: d.Path, Name: d.Stem()})
	for _, h := range ex.Headings {
		out = append(out, Referenceable{Kind: THeading, Path: d.Path, Name: h.Slug, Text: h.Text, Span: h.Span, Level: h.Level})
	}
	for _, a := range ex.Anchors {
		out = append(out, Referenceable{Kind: TAnchor, Path: d.Path, Name: a.Name, Text: a.AttachedHeading, Span: a.Span})
	}
	for _, a := range ex.DirectiveAnchors {
		out = append(out, Referenceable{Kind: TAnchor, Path: d.Path, Name: a.Name, Span: a.Span})
	}
	for _, g := range ex.Glossary {
		out = append(out, Referenceable{Kind: TGlossary, Path: d.Path, Name: g.Term, Text: g.Definition, Span: g.Span})
	}
	for _, l := range ex.MathLabels {
		out = append(out, Referenceable{Kind: TMath, Path: d.Path, Name: l.Name, Span: l.Span})
	}
	for _, l := range ex.FigureLabels {
		out = append(out, Referenceable{Kind: TFigure, Path: d.Path, Name: l.Name, Span: l.Span})
	}
	for _, f := range ex.Footnotes {
		out = append(out, Referenceable{Kind: TFootnote, Path: d.Path, Name: f.ID, Text: f.Text, Span: f.Span})
	}
	for _, l := range ex.LinkRefDefs {
		out = append(out, Referenceable{Kind: TLinkRef, Path: d.Path, Name: l.Label, Text: l.URL, Span: l.Span})
	}
	for _, b := range ex.IndexedBlocks {
		out = append(out, Referenceable{Kind: TBlock, Path: d.Path, Name: b.ID, Span: b.Span})
	}
	for _, r := range ex.Refs {
		if r.Kind == extract.RefTag {
			out = append(out, Referenceable{Kind: TTag, Path: d.Path, Name: r.Target, Span: r.Span})
		}
	}
	if ex.Front != nil {
		for name, value := range ex.Front.Substitutions {
			out = append(out, Referenceable{Kind: TSubstitution, Path: d.Path, Name: name, Text: value})
		}
	}
	return out
}

func stemOf(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
