package query

import (
	"regexp"
	"strings"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/vault"
)

// Edit is one text replacement inside a document.
type Edit struct {
	Path    string
	Span    parser.Span
	NewText string
}

var (
	anchorNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	blockIDRe    = regexp.MustCompile(`^[\w-]+$`)
	footnoteIDRe = regexp.MustCompile(`^\^?[^\s\[\]]+$`)
	tagNameRe    = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_/'-]*$`)
	anchorDefRe  = regexp.MustCompile(`^\(([A-Za-z][A-Za-z0-9_-]*)\)=`)
	labelOptRe   = regexp.MustCompile(`(?m)^(:(?:label|name):[ \t]*|(?:label|name):[ \t]*)(\S+)[ \t]*$`)
)

// RenamePlan computes the text edits that rename the referenceable under
// the position, preserving the surface style of every incoming reference.
// A syntactically invalid new name yields an empty plan.
func RenamePlan(s *vault.Snapshot, path string, offset int, newName string) []Edit {
	target := referenceableAt(s, path, offset)
	if target == nil {
		return nil
	}
	newName = strings.TrimSpace(newName)
	if !validNewName(target.Kind, newName) {
		return nil
	}
	if target.Kind == vault.TFootnote && !strings.HasPrefix(newName, "^") {
		newName = "^" + newName
	}

	var edits []Edit
	if e, ok := definitionEdit(s, *target, newName); ok {
		edits = append(edits, e)
	} else if target.Kind != vault.TTag {
		return nil
	}

	if target.Kind == vault.TTag {
		return append(edits, tagEdits(s, target.Name, newName)...)
	}

	for _, edge := range s.Backlinks(target.Key()) {
		if e, ok := referenceEdit(s, edge, *target, newName); ok {
			edits = append(edits, e)
		}
	}
	return edits
}

func validNewName(kind vault.TargetKind, name string) bool {
	if name == "" || strings.ContainsAny(name, "\n\r") {
		return false
	}
	switch kind {
	case vault.TAnchor, vault.TMath, vault.TFigure:
		return anchorNameRe.MatchString(name)
	case vault.THeading:
		return !strings.HasPrefix(name, "#") && !strings.Contains(name, "`")
	case vault.TGlossary:
		return !strings.Contains(name, "`")
	case vault.TBlock:
		return blockIDRe.MatchString(name)
	case vault.TFootnote:
		return footnoteIDRe.MatchString(name)
	case vault.TLinkRef:
		return !strings.ContainsAny(name, " \t[]")
	case vault.TTag:
		return tagNameRe.MatchString(name)
	}
	// Files and substitution definitions are not renameable in place.
	return false
}

// definitionEdit rewrites the defining site of the referenceable.
func definitionEdit(s *vault.Snapshot, target vault.Referenceable, newName string) (Edit, bool) {
	doc := s.Doc(target.Path)
	if doc == nil {
		return Edit{}, false
	}
	text := doc.Rope.Slice(target.Span.Start, target.Span.End)

	switch target.Kind {
	case vault.TAnchor:
		if m := anchorDefRe.FindStringSubmatchIndex(text); m != nil {
			return Edit{
				Path:    target.Path,
				Span:    parser.Span{Start: target.Span.Start + m[2], End: target.Span.Start + m[3]},
				NewText: newName,
			}, true
		}
		// Anchors from a directive :name:/:label: option rewrite the value.
		return labelValueEdit(target, text, newName)

	case vault.TMath, vault.TFigure:
		return labelValueEdit(target, text, newName)

	case vault.THeading:
		marker := strings.IndexFunc(text, func(r rune) bool { return r != '#' && r != ' ' })
		if marker < 0 {
			return Edit{}, false
		}
		return Edit{
			Path:    target.Path,
			Span:    parser.Span{Start: target.Span.Start + marker, End: target.Span.End},
			NewText: newName,
		}, true

	case vault.TGlossary:
		return Edit{Path: target.Path, Span: target.Span, NewText: newName}, true

	case vault.TFootnote, vault.TLinkRef:
		// The definition line starts with [id]:.
		if !strings.HasPrefix(text, "[") {
			return Edit{}, false
		}
		end := strings.IndexByte(text, ']')
		if end <= 1 {
			return Edit{}, false
		}
		return Edit{
			Path:    target.Path,
			Span:    parser.Span{Start: target.Span.Start + 1, End: target.Span.Start + end},
			NewText: newName,
		}, true

	case vault.TBlock:
		idx := strings.LastIndex(text, " ^")
		if idx < 0 {
			return Edit{}, false
		}
		return Edit{
			Path:    target.Path,
			Span:    parser.Span{Start: target.Span.Start + idx + 2, End: target.Span.End},
			NewText: newName,
		}, true
	}
	return Edit{}, false
}

func labelValueEdit(target vault.Referenceable, text, newName string) (Edit, bool) {
	for _, m := range labelOptRe.FindAllStringSubmatchIndex(text, -1) {
		if text[m[4]:m[5]] != target.Name {
			continue
		}
		return Edit{
			Path:    target.Path,
			Span:    parser.Span{Start: target.Span.Start + m[4], End: target.Span.Start + m[5]},
			NewText: newName,
		}, true
	}
	return Edit{}, false
}

// referenceEdit rewrites one incoming reference, preserving its link style.
func referenceEdit(s *vault.Snapshot, edge *vault.Edge, target vault.Referenceable, newName string) (Edit, bool) {
	doc := s.Doc(edge.Source)
	if doc == nil {
		return Edit{}, false
	}
	ref := edge.Ref
	replacement := newName
	if target.Kind == vault.THeading {
		// Heading targets are referenced by slug.
		replacement = extract.Slugify(newName)
	}

	switch ref.Kind {
	case extract.RefRoleRef, extract.RefRoleNumref, extract.RefRoleEq, extract.RefRoleTerm:
		if target.Kind == vault.TGlossary {
			replacement = newName
		}
		return Edit{Path: edge.Source, Span: ref.TargetSpan, NewText: replacement}, true

	case extract.RefHeadingLink:
		text := doc.Rope.Slice(ref.Span.Start, ref.Span.End)
		idx := strings.LastIndexByte(text, '#')
		if idx < 0 || !strings.HasSuffix(text, ")") {
			return Edit{}, false
		}
		return Edit{
			Path:    edge.Source,
			Span:    parser.Span{Start: ref.Span.Start + idx + 1, End: ref.Span.End - 1},
			NewText: replacement,
		}, true

	case extract.RefBlockLink:
		text := doc.Rope.Slice(ref.Span.Start, ref.Span.End)
		idx := strings.LastIndex(text, "#^")
		if idx < 0 || !strings.HasSuffix(text, ")") {
			return Edit{}, false
		}
		return Edit{
			Path:    edge.Source,
			Span:    parser.Span{Start: ref.Span.Start + idx + 2, End: ref.Span.End - 1},
			NewText: newName,
		}, true

	case extract.RefFootnote, extract.RefLinkRefShortcut:
		return Edit{Path: edge.Source, Span: ref.TargetSpan, NewText: newName}, true
	}
	return Edit{}, false
}

// tagEdits rewrites every occurrence of the tag, including nested child
// tags that share the renamed prefix.
func tagEdits(s *vault.Snapshot, oldName, newName string) []Edit {
	var edits []Edit
	for _, site := range s.TagSites(oldName) {
		rest := strings.TrimPrefix(site.Name, oldName)
		edits = append(edits, Edit{
			Path:    site.Path,
			Span:    parser.Span{Start: site.Span.Start + 1, End: site.Span.End},
			NewText: newName + rest,
		})
	}
	return edits
}
