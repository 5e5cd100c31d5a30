package vault

import (
	"path"
	"strings"

	"github.com/starford/moxide/internal/extract"
)

// Resolve maps a reference's raw target, relative to the source document,
// onto the referenceables it denotes. The result is ordered (best candidate
// first) and empty when nothing matches.
func (s *Snapshot) Resolve(d *Document, ref extract.Reference) []Referenceable {
	switch ref.Kind {
	case extract.RefFileLink, extract.RefRoleDoc, extract.RefInclude,
		extract.RefTocEntry, extract.RefRoleDownload:
		return s.resolveFiles(d, ref.Target)

	case extract.RefHeadingLink:
		return s.resolveInFile(d, ref.Target, func(target *Document) []Referenceable {
			want := extract.Slugify(ref.Heading)
			for _, h := range target.Ex.Headings {
				if h.Slug == want {
					return []Referenceable{{Kind: THeading, Path: target.Path, Name: h.Slug, Text: h.Text, Span: h.Span, Level: h.Level}}
				}
			}
			return nil
		})

	case extract.RefBlockLink:
		return s.resolveInFile(d, ref.Target, func(target *Document) []Referenceable {
			for _, b := range target.Ex.IndexedBlocks {
				if strings.EqualFold(b.ID, ref.BlockID) {
					return []Referenceable{{Kind: TBlock, Path: target.Path, Name: b.ID, Span: b.Span}}
				}
			}
			return nil
		})

	case extract.RefRoleRef:
		target := ref.Target
		if found := s.anchorsNamed(target); len(found) > 0 {
			return found
		}
		return s.headingsSlugged(target)

	case extract.RefRoleNumref:
		if found := s.figuresNamed(ref.Target); len(found) > 0 {
			return found
		}
		return s.mathNamed(ref.Target)

	case extract.RefRoleEq:
		return s.mathNamed(ref.Target)

	case extract.RefRoleTerm:
		return s.glossaryNamed(ref.Target)

	case extract.RefTag:
		return s.TagSites(ref.Target)

	case extract.RefFootnote:
		for _, f := range d.Ex.Footnotes {
			if f.ID == ref.Target {
				return []Referenceable{{Kind: TFootnote, Path: d.Path, Name: f.ID, Text: f.Text, Span: f.Span}}
			}
		}
		return nil

	case extract.RefLinkRefShortcut:
		for _, l := range d.Ex.LinkRefDefs {
			if strings.EqualFold(l.Label, ref.Target) {
				return []Referenceable{{Kind: TLinkRef, Path: d.Path, Name: l.Label, Text: l.URL, Span: l.Span}}
			}
		}
		return nil

	case extract.RefSubstitution:
		if d.Ex.Front != nil {
			if val, ok := d.Ex.Front.Substitutions[ref.Target]; ok {
				return []Referenceable{{Kind: TSubstitution, Path: d.Path, Name: ref.Target, Text: val}}
			}
		}
		return nil
	}
	return nil
}

// resolveInFile resolves the file portion of a link and applies pick to the
// target document. An empty file portion denotes the source document.
func (s *Snapshot) resolveInFile(d *Document, filePart string, pick func(*Document) []Referenceable) []Referenceable {
	targets := []*Document{d}
	if filePart != "" {
		targets = nil
		for _, f := range s.resolveFiles(d, filePart) {
			if doc := s.docs[f.Path]; doc != nil {
				targets = append(targets, doc)
			}
		}
	}
	var out []Referenceable
	for _, t := range targets {
		out = append(out, pick(t)...)
	}
	return out
}

// resolveFiles resolves a path-like target: first relative to the source
// document's directory, then root-relative for /-prefixed targets, then by
// file stem across the vault (respecting the configured case mode). Path
// hits win; stem collisions return every candidate ordered by shortest
// relative path then lexicographically.
func (s *Snapshot) resolveFiles(d *Document, target string) []Referenceable {
	target = strings.TrimSpace(target)
	if i := strings.IndexByte(target, '#'); i >= 0 {
		target = target[:i]
	}
	if target == "" {
		return []Referenceable{{Kind: TFile, Path: d.Path, Name: d.Stem()}}
	}

	try := func(rel string) *Document {
		rel = path.Clean(rel)
		if doc := s.byRel[rel]; doc != nil {
			return doc
		}
		if !strings.HasSuffix(rel, ".md") {
			return s.byRel[rel+".md"]
		}
		return nil
	}

	if strings.HasPrefix(target, "/") {
		if doc := try(strings.TrimPrefix(target, "/")); doc != nil {
			return []Referenceable{fileTarget(doc)}
		}
	} else {
		if doc := try(path.Join(path.Dir(d.Rel), target)); doc != nil {
			return []Referenceable{fileTarget(doc)}
		}
		// Bare targets also resolve root-relative, the Sphinx convention.
		if doc := try(target); doc != nil {
			return []Referenceable{fileTarget(doc)}
		}
	}

	stem := stemOf(target)
	var paths []string
	switch s.caseMode {
	case CaseIgnore:
		paths = s.stemsLower[strings.ToLower(stem)]
	case CaseRespect:
		paths = s.stems[stem]
	default: // smart
		if stem == strings.ToLower(stem) {
			paths = s.stemsLower[stem]
		} else {
			paths = s.stems[stem]
		}
	}
	out := make([]Referenceable, 0, len(paths))
	for _, p := range paths {
		if doc := s.docs[p]; doc != nil {
			out = append(out, fileTarget(doc))
		}
	}
	return out
}

func fileTarget(d *Document) Referenceable {
	return Referenceable{Kind: TFile, Path: d.Path, Name: d.Stem()}
}
