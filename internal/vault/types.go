// Package vault maintains the document graph: documents keyed by canonical
// path, resolved reference edges, and the global lookup indexes that back
// navigation queries. Snapshots are immutable; every mutation produces a new
// Snapshot sharing unchanged documents with its predecessor.
package vault

import (
	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/rope"
)

// Document is one Markdown file in the vault at a specific revision.
type Document struct {
	// Path is the canonical absolute path and the document's identity.
	Path string
	// Rel is the slash-separated path relative to the vault root, used for
	// {doc} and root-absolute link resolution.
	Rel string
	// Rev increases monotonically with each committed change.
	Rev  uint64
	Rope *rope.Rope
	Ex   *extract.Extraction
}

// Stem returns the file name without directories or extension.
func (d *Document) Stem() string { return stemOf(d.Rel) }

// TargetKind identifies the referenceable variant.
type TargetKind int

const (
	TFile TargetKind = iota
	THeading
	TBlock
	TAnchor
	TGlossary
	TMath
	TFigure
	TFootnote
	TLinkRef
	TTag
	TSubstitution
)

// String names the kind for logs and symbol listings.
func (k TargetKind) String() string {
	switch k {
	case TFile:
		return "file"
	case THeading:
		return "heading"
	case TBlock:
		return "indexed_block"
	case TAnchor:
		return "anchor"
	case TGlossary:
		return "glossary_term"
	case TMath:
		return "math_label"
	case TFigure:
		return "figure_label"
	case TFootnote:
		return "footnote_def"
	case TLinkRef:
		return "link_ref_def"
	case TTag:
		return "tag"
	case TSubstitution:
		return "substitution_def"
	}
	return "unknown"
}

// Referenceable is a concrete target inside a document.
type Referenceable struct {
	Kind TargetKind
	// Path is the canonical path of the owning document.
	Path string
	// Name is the matchable identity: slug, anchor name, term, label,
	// footnote id, tag, or file stem.
	Name string
	// Text carries display material: heading text, glossary definition.
	Text string
	Span parser.Span
	// Level is set for headings.
	Level int
}

// Key is the identity of a Referenceable inside the backlink index.
func (r Referenceable) Key() Key {
	return Key{Kind: r.Kind, Path: r.Path, Name: r.Name}
}

// Key identifies a referenceable for reverse lookups. Every key, tag keys
// included, carries the defining document's path.
type Key struct {
	Kind TargetKind
	Path string
	Name string
}

// EdgeKind classifies graph edges.
type EdgeKind int

const (
	EdgeReference EdgeKind = iota
	// EdgeStructure links toctree parents to children.
	EdgeStructure
	// EdgeTransclusion links including documents to included ones and must
	// stay acyclic.
	EdgeTransclusion
)

// Edge is one resolved reference committed to the graph.
type Edge struct {
	Kind   EdgeKind
	Source string
	Ref    extract.Reference
	Target Referenceable
	// Caption is the toctree caption on Structure edges.
	Caption string
	// ResolvedAt is the source document revision the edge was built from.
	ResolvedAt uint64
}

// Case selects the case-matching mode for file-name resolution.
type Case int

const (
	// CaseSmart ignores case unless the pattern contains an upper-case rune.
	CaseSmart Case = iota
	CaseIgnore
	CaseRespect
)

// ParseCase maps a configuration string onto a Case; unknown values fall
// back to smart.
func ParseCase(s string) Case {
	switch s {
	case "ignore":
		return CaseIgnore
	case "respect":
		return CaseRespect
	default:
		return CaseSmart
	}
}
