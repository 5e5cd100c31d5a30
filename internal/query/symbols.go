package query

import (
	"sort"
	"strings"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/vault"
)

// Symbol is one document symbol in source order.
type Symbol struct {
	Name   string
	Kind   vault.TargetKind
	Span   parser.Span
	Detail string
}

// DocumentSymbols lists the headings and MyST symbols of a document in
// source order.
func DocumentSymbols(s *vault.Snapshot, path string) []Symbol {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	var out []Symbol
	for _, t := range vault.DocTargets(d) {
		switch t.Kind {
		case vault.TFile, vault.TTag, vault.TSubstitution:
			continue
		}
		name := t.Name
		if t.Kind == vault.THeading {
			name = t.Text
		}
		out = append(out, Symbol{Name: name, Kind: t.Kind, Span: t.Span, Detail: t.Kind.String()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Span.Start < out[j].Span.Start })
	return out
}

// CodeActionQuickFix is the LSP code action kind of every code action.
const CodeActionQuickFix = "quickfix"

// CodeAction is a proposed fix at a position.
type CodeAction struct {
	Title string
	Kind  string
	// CreateFilePath, when set, asks for a new vault file at the
	// root-relative path.
	CreateFilePath string
	Edits          []Edit
}

// CodeActions proposes fixes for the reference under the position:
// creating a missing file or appending a missing heading.
func CodeActions(s *vault.Snapshot, path string, offset int, opts Options, newFileFolder string) []CodeAction {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	cur := CursorAt(s, path, offset)
	if cur.Ref == nil {
		return nil
	}
	ref := *cur.Ref
	if len(s.Resolve(d, ref)) > 0 {
		return nil
	}

	switch ref.Kind {
	case extract.RefFileLink, extract.RefRoleDoc, extract.RefInclude:
		rel := strings.TrimPrefix(strings.TrimSpace(ref.Target), "/")
		if rel == "" {
			return nil
		}
		if !strings.HasSuffix(rel, ".md") {
			rel += ".md"
		}
		if !strings.Contains(rel, "/") && newFileFolder != "" {
			rel = strings.TrimSuffix(newFileFolder, "/") + "/" + rel
		}
		return []CodeAction{{
			Title:          "Create file " + rel,
			Kind:           CodeActionQuickFix,
			CreateFilePath: rel,
		}}

	case extract.RefHeadingLink:
		// The file resolves but the heading is missing: offer to append it.
		files := s.Resolve(d, fileRef(ref.Target))
		if len(files) == 0 {
			return nil
		}
		target := s.Doc(files[0].Path)
		if target == nil {
			return nil
		}
		end := target.Rope.Len()
		return []CodeAction{{
			Title: "Append heading \"" + ref.Heading + "\" to " + target.Rel,
			Kind:  CodeActionQuickFix,
			Edits: []Edit{{
				Path:    target.Path,
				Span:    parser.Span{Start: end, End: end},
				NewText: "\n## " + ref.Heading + "\n",
			}},
		}}
	}
	return nil
}
