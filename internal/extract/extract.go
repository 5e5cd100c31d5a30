// Package extract turns a parsed MyST tree into the typed references and
// referenceable targets that feed the vault graph.
package extract

import (
	"regexp"
	"strings"

	"github.com/starford/moxide/internal/parser"
)

// RefKind identifies the reference variant.
type RefKind int

const (
	RefFileLink RefKind = iota
	RefHeadingLink
	RefBlockLink
	RefFootnote
	RefLinkRefShortcut
	RefTag
	RefRoleRef
	RefRoleDoc
	RefRoleTerm
	RefRoleNumref
	RefRoleEq
	RefRoleDownload
	RefRoleOther
	RefSubstitution
	RefImage
	// RefInclude and RefTocEntry come from {include}/{literalinclude} and
	// {toctree} directives; the graph records them as Transclusion and
	// Structure edges.
	RefInclude
	RefTocEntry
)

// String names the kind for diagnostics and logging.
func (k RefKind) String() string {
	switch k {
	case RefFileLink:
		return "file_link"
	case RefHeadingLink:
		return "heading_link"
	case RefBlockLink:
		return "block_link"
	case RefFootnote:
		return "footnote"
	case RefLinkRefShortcut:
		return "link_ref"
	case RefTag:
		return "tag"
	case RefRoleRef:
		return "ref_role"
	case RefRoleDoc:
		return "doc_role"
	case RefRoleTerm:
		return "term_role"
	case RefRoleNumref:
		return "numref_role"
	case RefRoleEq:
		return "eq_role"
	case RefRoleDownload:
		return "download_role"
	case RefRoleOther:
		return "role"
	case RefSubstitution:
		return "substitution"
	case RefImage:
		return "image_link"
	case RefInclude:
		return "include"
	case RefTocEntry:
		return "toctree_entry"
	}
	return "unknown"
}

// Reference is one outgoing reference site in a document.
type Reference struct {
	Kind RefKind
	// Target is the raw target: a path for links, a name for roles and tags.
	Target  string
	Display string
	// Heading carries the #fragment of a heading link, BlockID the ^id of a
	// block link, RoleName the role's name for every role reference.
	Heading  string
	BlockID  string
	RoleName string
	Span     parser.Span
	// TargetSpan covers just the target text, used by rename edits.
	TargetSpan parser.Span
}

// Heading is a referenceable document heading.
type Heading struct {
	Level int
	Text  string
	Slug  string
	Span  parser.Span
}

// Anchor is a referenceable (name)= target or a directive :name:/:label:.
type Anchor struct {
	Name string
	Span parser.Span
	// AttachedHeading is the text of the heading immediately below a
	// standalone anchor, when present.
	AttachedHeading string
}

// GlossaryTerm is one term inside a {glossary} directive.
type GlossaryTerm struct {
	Term       string
	Definition string
	Span       parser.Span
}

// Label is a :label:/:name: on a math or figure directive.
type Label struct {
	Name string
	Span parser.Span
}

// FootnoteDef is a [^id]: definition line.
type FootnoteDef struct {
	ID   string
	Text string
	Span parser.Span
}

// LinkRefDef is a [label]: url definition line.
type LinkRefDef struct {
	Label string
	URL   string
	Span  parser.Span
}

// IndexedBlock is a line carrying a trailing ^id block index.
type IndexedBlock struct {
	ID   string
	Span parser.Span
}

// Extraction is everything pulled out of one document revision.
type Extraction struct {
	Refs             []Reference
	Headings         []Heading
	Anchors          []Anchor
	DirectiveAnchors []Anchor
	Glossary         []GlossaryTerm
	MathLabels       []Label
	FigureLabels     []Label
	Footnotes        []FootnoteDef
	LinkRefDefs      []LinkRefDef
	IndexedBlocks    []IndexedBlock
	Front            *Frontmatter
}

// Config controls code-region suppression.
type Config struct {
	// TagsInCode keeps #tags found inside code regions.
	TagsInCode bool
	// RefsInCode keeps links and roles found inside code regions.
	RefsInCode bool
}

var (
	footnoteDefRe = regexp.MustCompile(`^\[(\^[^\s\[\]]+)\]:\s*(.*)$`)
	linkRefDefRe  = regexp.MustCompile(`^\[([^\^\[\]][^\[\]]*)\]:\s*(\S+)\s*(.*)$`)
	indexedRe     = regexp.MustCompile(`\S.* \^([\w-]+)\s*$`)
	externalRe    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*:`)
	tocTargetRe   = regexp.MustCompile(`^.*<([^<>]+)>$`)
)

var roleKinds = map[string]RefKind{
	"ref":      RefRoleRef,
	"doc":      RefRoleDoc,
	"term":     RefRoleTerm,
	"numref":   RefRoleNumref,
	"eq":       RefRoleEq,
	"download": RefRoleDownload,
}

// Extract walks the tree and emits the document's references and
// referenceables. It never fails; unparseable pieces are skipped.
func Extract(tree *parser.Tree, cfg Config) *Extraction {
	ex := &Extraction{Front: ParseFrontmatter(tree.Source)}

	for _, h := range tree.Headings {
		ex.Headings = append(ex.Headings, Heading{
			Level: h.Level,
			Text:  h.Text,
			Slug:  Slugify(h.Text),
			Span:  h.Span,
		})
	}

	for _, a := range tree.Anchors {
		ex.Anchors = append(ex.Anchors, Anchor{
			Name:            a.Name,
			Span:            a.Span,
			AttachedHeading: headingBelow(tree, a.Span),
		})
	}

	walkDirectives(tree, tree.Directives, ex)
	scanDefinitionLines(tree, ex)
	collectRefs(tree, cfg, ex)

	return ex
}

func walkDirectives(tree *parser.Tree, ds []*parser.Directive, ex *Extraction) {
	for _, d := range ds {
		switch d.Name {
		case "glossary":
			body := tree.Source[d.BodySpan.Start:d.BodySpan.End]
			ex.Glossary = append(ex.Glossary, parseGlossary(body, d.BodySpan.Start)...)
		case "math":
			if label, ok := d.Label(); ok {
				ex.MathLabels = append(ex.MathLabels, Label{Name: label, Span: d.Span})
			}
		case "figure", "image":
			if label, ok := d.Label(); ok {
				ex.FigureLabels = append(ex.FigureLabels, Label{Name: label, Span: d.Span})
			}
		case "include", "literalinclude":
			if d.Args != "" {
				ex.Refs = append(ex.Refs, Reference{
					Kind:       RefInclude,
					Target:     d.Args,
					Span:       d.Span,
					TargetSpan: d.Span,
				})
			}
		case "toctree":
			collectTocEntries(tree, d, ex)
		default:
			if label, ok := d.Label(); ok {
				ex.DirectiveAnchors = append(ex.DirectiveAnchors, Anchor{Name: label, Span: d.Span})
			}
		}
		walkDirectives(tree, d.Children, ex)
	}
}

// collectTocEntries reads one document path per non-blank body line of a
// {toctree} directive. Glob entries and external URLs are skipped.
func collectTocEntries(tree *parser.Tree, d *parser.Directive, ex *Extraction) {
	if d.BodySpan.End <= d.BodySpan.Start {
		return
	}
	caption, _ := d.Option("caption")
	body := tree.Source[d.BodySpan.Start:d.BodySpan.End]
	off := d.BodySpan.Start
	for _, line := range strings.Split(body, "\n") {
		entry := strings.TrimSpace(line)
		lineStart := off
		off += len(line) + 1
		if entry == "" || strings.HasPrefix(entry, ":") || strings.Contains(entry, "*") || externalRe.MatchString(entry) {
			continue
		}
		// "Title <path>" form names an explicit target.
		if m := tocTargetRe.FindStringSubmatch(entry); m != nil {
			entry = m[1]
		}
		pad := strings.Index(line, strings.TrimSpace(line))
		ex.Refs = append(ex.Refs, Reference{
			Kind:   RefTocEntry,
			Target: entry,
			// Display carries the toctree caption onto the Structure edge.
			Display:    caption,
			Span:       parser.Span{Start: lineStart + pad, End: lineStart + len(line)},
			TargetSpan: parser.Span{Start: lineStart + pad, End: lineStart + len(line)},
		})
	}
}

// scanDefinitionLines finds footnote definitions, link-reference definitions
// and indexed blocks by line scan, outside literal regions.
func scanDefinitionLines(tree *parser.Tree, ex *Extraction) {
	src := tree.Source
	off := 0
	for _, line := range strings.Split(src, "\n") {
		start := off
		off += len(line) + 1
		if inAnySpan(tree.Literal, start) || inAnySpan(tree.Comments, start) {
			continue
		}
		lineSpan := parser.Span{Start: start, End: start + len(line)}
		if m := footnoteDefRe.FindStringSubmatch(line); m != nil {
			ex.Footnotes = append(ex.Footnotes, FootnoteDef{
				ID:   m[1],
				Text: strings.TrimSpace(m[2]),
				Span: lineSpan,
			})
			continue
		}
		if m := linkRefDefRe.FindStringSubmatch(line); m != nil {
			ex.LinkRefDefs = append(ex.LinkRefDefs, LinkRefDef{
				Label: m[1],
				URL:   m[2],
				Span:  lineSpan,
			})
			continue
		}
		if m := indexedRe.FindStringSubmatch(line); m != nil {
			ex.IndexedBlocks = append(ex.IndexedBlocks, IndexedBlock{
				ID:   m[1],
				Span: lineSpan,
			})
		}
	}
}

func collectRefs(tree *parser.Tree, cfg Config, ex *Extraction) {
	keepCode := func(inCode bool) bool { return !inCode || cfg.RefsInCode }

	for _, l := range tree.Links {
		if l.InComment || !keepCode(l.InCode) {
			continue
		}
		if externalRe.MatchString(l.Target) {
			continue
		}
		ref := classifyLink(l)
		ex.Refs = append(ex.Refs, ref)
	}

	for _, r := range tree.Roles {
		if r.InComment || !keepCode(r.InCode) {
			continue
		}
		kind, ok := roleKinds[r.Name]
		if !ok {
			kind = RefRoleOther
		}
		ex.Refs = append(ex.Refs, Reference{
			Kind:       kind,
			Target:     r.Target,
			Display:    r.Display,
			RoleName:   r.Name,
			Span:       r.Span,
			TargetSpan: r.TargetSpan,
		})
	}

	for _, tg := range tree.Tags {
		if tg.InComment || (tg.InCode && !cfg.TagsInCode) {
			continue
		}
		ex.Refs = append(ex.Refs, Reference{
			Kind:       RefTag,
			Target:     tg.Name,
			Span:       tg.Span,
			TargetSpan: parser.Span{Start: tg.Span.Start + 1, End: tg.Span.End},
		})
	}

	for _, f := range tree.Footnotes {
		if f.InComment || !keepCode(f.InCode) {
			continue
		}
		ex.Refs = append(ex.Refs, Reference{
			Kind:       RefFootnote,
			Target:     f.ID,
			Span:       f.Span,
			TargetSpan: parser.Span{Start: f.Span.Start + 1, End: f.Span.End - 1},
		})
	}

	for _, s := range tree.Shortcuts {
		if s.InComment || !keepCode(s.InCode) {
			continue
		}
		ex.Refs = append(ex.Refs, Reference{
			Kind:       RefLinkRefShortcut,
			Target:     s.Label,
			Span:       s.Span,
			TargetSpan: parser.Span{Start: s.Span.Start + 1, End: s.Span.End - 1},
		})
	}

	for _, s := range tree.Subs {
		if s.InComment || !keepCode(s.InCode) {
			continue
		}
		ex.Refs = append(ex.Refs, Reference{
			Kind:       RefSubstitution,
			Target:     s.Name,
			Span:       s.Span,
			TargetSpan: s.Span,
		})
	}
}

func classifyLink(l parser.Link) Reference {
	ref := Reference{
		Target:     l.Target,
		Display:    l.Display,
		Span:       l.Span,
		TargetSpan: l.Span,
	}
	if l.Image {
		ref.Kind = RefImage
		return ref
	}
	path, frag, hasFrag := strings.Cut(l.Target, "#")
	if hasFrag {
		ref.Target = path
		if strings.HasPrefix(frag, "^") {
			ref.Kind = RefBlockLink
			ref.BlockID = strings.TrimPrefix(frag, "^")
		} else {
			ref.Kind = RefHeadingLink
			ref.Heading = frag
		}
		return ref
	}
	ref.Kind = RefFileLink
	return ref
}

// headingBelow returns the text of the heading directly following the given
// anchor span, with only blank text between them.
func headingBelow(tree *parser.Tree, anchor parser.Span) string {
	best := ""
	bestStart := -1
	for _, h := range tree.Headings {
		if h.Span.Start < anchor.End {
			continue
		}
		if bestStart < 0 || h.Span.Start < bestStart {
			between := tree.Source[anchor.End:h.Span.Start]
			if strings.TrimSpace(between) == "" {
				best = h.Text
				bestStart = h.Span.Start
			}
		}
	}
	return best
}

func inAnySpan(spans []parser.Span, off int) bool {
	for _, s := range spans {
		if s.Contains(off) {
			return true
		}
	}
	return false
}
