package query

import (
	"fmt"
	"strings"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/vault"
)

// Severity follows the LSP numbering.
type Severity int

const (
	SeverityError   Severity = 1
	SeverityWarning Severity = 2
)

// Diagnostic is one finding for a document.
type Diagnostic struct {
	Span     parser.Span
	Severity Severity
	Message  string
	Source   string
}

// Diagnostics reports unresolved references, include cycles and undefined
// substitutions for one document.
func Diagnostics(s *vault.Snapshot, path string, opts Options) []Diagnostic {
	d := s.Doc(path)
	if d == nil {
		return nil
	}
	var out []Diagnostic

	cycleSpans := map[parser.Span]bool{}
	for _, ref := range s.CycleRefs(path) {
		cycleSpans[ref.Span] = true
		out = append(out, Diagnostic{
			Span:     ref.Span,
			Severity: SeverityError,
			Message:  fmt.Sprintf("Include cycle: %q transitively includes this document", ref.Target),
			Source:   "moxide",
		})
	}

	if !opts.UnresolvedDiagnostics {
		return out
	}

	for _, ref := range d.Ex.Refs {
		if cycleSpans[ref.Span] || !diagnosable(ref) {
			continue
		}
		if len(s.Resolve(d, ref)) > 0 {
			continue
		}
		out = append(out, Diagnostic{
			Span:     ref.Span,
			Severity: SeverityWarning,
			Message:  unresolvedMessage(ref),
			Source:   "moxide",
		})
	}
	return out
}

// diagnosable filters out reference kinds that never warrant a broken-link
// report: tags, images, unknown roles, and downloads of non-Markdown assets
// the vault does not track.
func diagnosable(ref extract.Reference) bool {
	switch ref.Kind {
	case extract.RefTag, extract.RefImage, extract.RefRoleOther:
		return false
	case extract.RefRoleDownload:
		return strings.HasSuffix(ref.Target, ".md")
	}
	return true
}

func unresolvedMessage(ref extract.Reference) string {
	switch ref.Kind {
	case extract.RefRoleRef, extract.RefRoleNumref:
		return fmt.Sprintf("Unresolved reference to anchor %q", ref.Target)
	case extract.RefRoleDoc:
		return fmt.Sprintf("Unresolved document reference %q", ref.Target)
	case extract.RefRoleTerm:
		return fmt.Sprintf("Unresolved glossary term %q", ref.Target)
	case extract.RefRoleEq:
		return fmt.Sprintf("Unresolved equation label %q", ref.Target)
	case extract.RefRoleDownload:
		return fmt.Sprintf("Unresolved download target %q", ref.Target)
	case extract.RefFileLink:
		return fmt.Sprintf("Unresolved file link %q", ref.Target)
	case extract.RefHeadingLink:
		return fmt.Sprintf("Unresolved heading link %q", ref.Target+"#"+ref.Heading)
	case extract.RefBlockLink:
		return fmt.Sprintf("Unresolved block link %q", ref.Target+"#^"+ref.BlockID)
	case extract.RefFootnote:
		return fmt.Sprintf("Unresolved footnote %q", ref.Target)
	case extract.RefLinkRefShortcut:
		return fmt.Sprintf("Unresolved link reference %q", ref.Target)
	case extract.RefSubstitution:
		return fmt.Sprintf("Undefined substitution %q", ref.Target)
	case extract.RefInclude:
		return fmt.Sprintf("Included file %q not found", ref.Target)
	case extract.RefTocEntry:
		return fmt.Sprintf("Toctree entry %q not found", ref.Target)
	}
	return fmt.Sprintf("Unresolved reference %q", ref.Target)
}
