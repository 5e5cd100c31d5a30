// Package query answers position-indexed questions against a vault
// snapshot: cursor resolution, navigation, hover, diagnostics, rename
// planning and completion. Every function takes an explicit Snapshot and
// never blocks; missing targets yield empty results, not errors.
package query

import (
	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/vault"
)

// Options carries the settings that shape query results.
type Options struct {
	// HoverLines caps the excerpt at the first N lines.
	HoverLines int
	// UnresolvedDiagnostics toggles broken-reference warnings.
	UnresolvedDiagnostics bool
	// HeadingCompletions toggles heading slugs in {ref} completion.
	HeadingCompletions bool
	// TitleHeadings mirrors the title_headings setting; no query reads it.
	TitleHeadings bool
	// IncludeMDExtension keeps the .md suffix in path completions.
	IncludeMDExtension bool
	// LinkFilenamesOnly completes bare file names instead of full paths.
	LinkFilenamesOnly bool
	// ExtraDirectives and ExtraRoles extend the built-in name sets.
	ExtraDirectives []string
	ExtraRoles      []string
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		HoverLines:            10,
		UnresolvedDiagnostics: true,
		HeadingCompletions:    true,
		TitleHeadings:         true,
	}
}

// Location is a span inside a document.
type Location struct {
	Path string
	Span parser.Span
}

// Target is what sits under the cursor: a reference, a referenceable, or
// neither.
type Target struct {
	Ref           *extract.Reference
	Referenceable *vault.Referenceable
}

// None reports whether nothing was found at the position.
func (t Target) None() bool { return t.Ref == nil && t.Referenceable == nil }

// CursorAt finds the innermost reference covering the byte offset, or the
// referenceable whose defining range covers it.
func CursorAt(s *vault.Snapshot, path string, offset int) Target {
	d := s.Doc(path)
	if d == nil {
		return Target{}
	}

	var best *extract.Reference
	for i := range d.Ex.Refs {
		r := &d.Ex.Refs[i]
		if !r.Span.Contains(offset) && offset != r.Span.End {
			continue
		}
		if best == nil || r.Span.End-r.Span.Start < best.Span.End-best.Span.Start {
			best = r
		}
	}
	if best != nil {
		return Target{Ref: best}
	}

	var bestT *vault.Referenceable
	for _, t := range vault.DocTargets(d) {
		if t.Span.End == t.Span.Start {
			continue
		}
		if !t.Span.Contains(offset) && offset != t.Span.End {
			continue
		}
		t := t
		if bestT == nil || t.Span.End-t.Span.Start < bestT.Span.End-bestT.Span.Start {
			bestT = &t
		}
	}
	if bestT != nil {
		return Target{Referenceable: bestT}
	}
	return Target{}
}

// GoToDefinition resolves the reference at the position to its target
// locations. A position on a referenceable returns the referenceable
// itself.
func GoToDefinition(s *vault.Snapshot, path string, offset int) []Location {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	cur := CursorAt(s, path, offset)
	switch {
	case cur.Ref != nil:
		var out []Location
		for _, c := range s.Resolve(d, *cur.Ref) {
			out = append(out, locationOf(c))
		}
		return out
	case cur.Referenceable != nil:
		return []Location{{Path: cur.Referenceable.Path, Span: cur.Referenceable.Span}}
	}
	return nil
}

// FindReferences returns every source span pointing at the referenceable
// under the position (or at the target of the reference under it).
func FindReferences(s *vault.Snapshot, path string, offset int) []Location {
	target := referenceableAt(s, path, offset)
	if target == nil {
		return nil
	}
	return backlinkLocations(s, *target)
}

// referenceableAt identifies the referenceable the position denotes,
// following a reference to its first resolution when needed.
func referenceableAt(s *vault.Snapshot, path string, offset int) *vault.Referenceable {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	cur := CursorAt(s, path, offset)
	switch {
	case cur.Referenceable != nil:
		return cur.Referenceable
	case cur.Ref != nil:
		cands := s.Resolve(d, *cur.Ref)
		if len(cands) > 0 {
			return &cands[0]
		}
	}
	return nil
}

// FileBacklinks returns every source span linking to the document itself.
func FileBacklinks(s *vault.Snapshot, path string) []Location {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	return backlinkLocations(s, vault.Referenceable{Kind: vault.TFile, Path: d.Path, Name: d.Stem()})
}

func backlinkLocations(s *vault.Snapshot, target vault.Referenceable) []Location {
	if target.Kind == vault.TTag {
		var out []Location
		for _, site := range s.TagSites(target.Name) {
			out = append(out, Location{Path: site.Path, Span: site.Span})
		}
		return out
	}
	var out []Location
	for _, e := range s.Backlinks(target.Key()) {
		out = append(out, Location{Path: e.Source, Span: e.Ref.Span})
	}
	return out
}

func locationOf(r vault.Referenceable) Location {
	return Location{Path: r.Path, Span: r.Span}
}
