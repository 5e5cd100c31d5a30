// Package parser produces a MyST-extended syntax tree from document text.
//
// The pipeline wraps goldmark's CommonMark parser for block structure, lifts
// fenced blocks whose info string is {name} into directive nodes (backtick
// fences via goldmark, colon fences via a pre-scan), parses directive
// options, and recursively parses Markdown-bearing directive bodies. Inline
// constructs (roles, links, tags, footnotes, substitutions) are scanned in a
// single pass over the raw source with code-region suppression.
//
// Parsing never fails: malformed directives stay generic code blocks and
// malformed option YAML yields an empty option list.
package parser

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"
)

// Span is a half-open byte range [Start, End) into the document source.
type Span struct {
	Start int
	End   int
}

// Contains reports whether the byte offset lies within the span.
func (s Span) Contains(off int) bool { return off >= s.Start && off < s.End }

// Covers reports whether other lies entirely within s.
func (s Span) Covers(other Span) bool { return other.Start >= s.Start && other.End <= s.End }

// FenceKind distinguishes the two MyST directive fence styles.
type FenceKind int

const (
	FenceBacktick FenceKind = iota
	FenceColon
)

// Option is one key/value directive option. Order is preserved.
type Option struct {
	Key   string
	Value string
}

// Directive is a lifted MyST directive block.
type Directive struct {
	Name    string
	Args    string
	Options []Option
	Fence   FenceKind
	// Span covers the whole block including both fence lines.
	Span Span
	// BodySpan covers the body after the option block; zero when empty.
	BodySpan Span
	Children []*Directive
}

// Option returns the value for key and whether it was present.
func (d *Directive) Option(key string) (string, bool) {
	for _, o := range d.Options {
		if o.Key == key {
			return o.Value, true
		}
	}
	return "", false
}

// Label returns the directive's :label:/:name: value, label taking priority.
func (d *Directive) Label() (string, bool) {
	if v, ok := d.Option("label"); ok {
		return v, true
	}
	return d.Option("name")
}

// Role is an inline MyST role such as {ref}`target` or {ref}`text <target>`.
type Role struct {
	Name    string
	Target  string
	Display string
	Span    Span
	// TargetSpan covers the target text inside the payload.
	TargetSpan Span
	InCode     bool
	InComment  bool
}

// Link is an inline Markdown link [text](target) or image ![alt](target).
type Link struct {
	Target    string
	Display   string
	Span      Span
	Image     bool
	InCode    bool
	InComment bool
}

// Anchor is a standalone (name)= target line.
type Anchor struct {
	Name string
	Span Span
}

// Heading is an ATX or setext heading.
type Heading struct {
	Level int
	Text  string
	Span  Span
}

// Tag is an inline #tag token.
type Tag struct {
	Name      string
	Span      Span
	InCode    bool
	InComment bool
}

// SubstitutionRef is a {{name}} substitution use.
type SubstitutionRef struct {
	Name      string
	Span      Span
	InCode    bool
	InComment bool
}

// FootnoteRef is an inline [^id] use (definitions are extracted separately).
type FootnoteRef struct {
	ID        string
	Span      Span
	InCode    bool
	InComment bool
}

// ShortcutRef is a [label] link-reference shortcut use.
type ShortcutRef struct {
	Label     string
	Span      Span
	InCode    bool
	InComment bool
}

// Tree is the parse result for one document.
type Tree struct {
	Source     string
	Directives []*Directive
	Roles      []Role
	Links      []Link
	Anchors    []Anchor
	Headings   []Heading
	Tags       []Tag
	Subs       []SubstitutionRef
	Footnotes  []FootnoteRef
	Shortcuts  []ShortcutRef
	// Literal holds body regions of literal code: plain fenced and indented
	// blocks plus literal-content directive bodies.
	Literal []Span
	// CodeSpans holds inline code span content regions.
	CodeSpans []Span
	// Comments holds % comment lines.
	Comments []Span
}

// Options configures a parse.
type Options struct {
	// ColonFence enables :::{name} directive fences.
	ColonFence bool
	// Comments enables % comment lines at column zero.
	Comments bool
}

// DefaultOptions enables the standard MyST extension set.
func DefaultOptions() Options {
	return Options{ColonFence: true, Comments: true}
}

// literalContent directives keep a raw body: no nested parse, no extractions.
var literalContent = map[string]struct{}{
	"code-block":     {},
	"code":           {},
	"literalinclude": {},
	"math":           {},
	"raw":            {},
}

// IsLiteralDirective reports whether name keeps a raw, non-Markdown body.
func IsLiteralDirective(name string) bool {
	_, ok := literalContent[name]
	return ok
}

var (
	directiveInfoRe = regexp.MustCompile(`^\s*\{([A-Za-z][A-Za-z0-9_-]*)\}\s*(.*)$`)
	colonOptionRe   = regexp.MustCompile(`^:([A-Za-z][A-Za-z0-9_-]*):\s*(.*)$`)
	anchorLineRe    = regexp.MustCompile(`^\(([A-Za-z][A-Za-z0-9_-]*)\)=\s*$`)
	colonOpenRe     = regexp.MustCompile(`^(:{3,})\{([A-Za-z][A-Za-z0-9_-]*)\}\s*(.*)$`)
	colonCloseRe    = regexp.MustCompile(`^(:{3,})\s*$`)
)

// Parse builds the MyST tree for text. It never returns an error.
func Parse(text string, opts Options) *Tree {
	t := &Tree{Source: text}
	body := text
	// Mask the frontmatter block so its delimiters cannot parse as setext
	// heading underlines. Frontmatter itself is the extractor's concern.
	if fm, ok := frontmatterSpan(text); ok {
		body = maskSpans(text, []Span{fm})
	}
	parseLevel(body, 0, opts, t, nil)
	scanInline(t, opts)
	return t
}

// parseLevel handles block structure for one nesting level. src is the level
// text, base its byte offset in the document. Directives found here are
// appended to parent.Children when parent is non-nil, else to t.Directives.
func parseLevel(src string, base int, opts Options, t *Tree, parent *Directive) {
	var colonRegions []colonRegion
	if opts.ColonFence {
		colonRegions = scanColonFences(src)
	}

	masked := src
	if len(colonRegions) > 0 {
		spans := make([]Span, len(colonRegions))
		for i, c := range colonRegions {
			spans[i] = c.span
		}
		masked = maskSpans(src, spans)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(gmtext.NewReader([]byte(masked)))

	var fenceSpans []Span

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if h, ok := headingFromNode(node, src, base); ok {
				t.Headings = append(t.Headings, h)
			}
		case *ast.FencedCodeBlock:
			span, bodySpan := fencedSpans(node, src)
			fenceSpans = append(fenceSpans, span)
			info := ""
			if node.Info != nil {
				info = src[node.Info.Segment.Start:node.Info.Segment.Stop]
			}
			if m := directiveInfoRe.FindStringSubmatch(info); m != nil {
				d := liftDirective(m[1], m[2], FenceBacktick, span, bodySpan, src, base, opts, t)
				appendDirective(t, parent, d)
			} else {
				t.Literal = append(t.Literal, Span{bodySpan.Start + base, bodySpan.End + base})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeBlock:
			if s, ok := linesSpan(node.Lines()); ok {
				t.Literal = append(t.Literal, Span{s.Start + base, s.End + base})
			}
			return ast.WalkSkipChildren, nil
		case *ast.CodeSpan:
			if s, ok := codeSpanSpan(node); ok {
				t.CodeSpans = append(t.CodeSpans, Span{s.Start + base, s.End + base})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, c := range colonRegions {
		d := liftDirective(c.name, c.args, FenceColon,
			c.span, c.body, src, base, opts, t)
		appendDirective(t, parent, d)
	}

	// Anchors and comments are line constructs at column zero, outside any
	// fence at this level.
	lineMask := maskSpans(masked, fenceSpans)
	scanLines(lineMask, base, opts, t)
}

func appendDirective(t *Tree, parent *Directive, d *Directive) {
	if parent != nil {
		parent.Children = append(parent.Children, d)
	} else {
		t.Directives = append(t.Directives, d)
	}
}

// liftDirective builds a Directive from a fence region, parses its options
// and recurses into Markdown-bearing bodies. Spans are level-relative and
// shifted by base here.
func liftDirective(name, args string, fence FenceKind, span, bodySpan Span, src string, base int, opts Options, t *Tree) *Directive {
	d := &Directive{
		Name:  name,
		Args:  strings.TrimSpace(args),
		Fence: fence,
		Span:  Span{span.Start + base, span.End + base},
	}

	rawBody := ""
	if bodySpan.End > bodySpan.Start {
		rawBody = src[bodySpan.Start:bodySpan.End]
	}
	options, consumed := parseDirectiveOptions(rawBody)
	d.Options = options

	innerStart := bodySpan.Start + consumed
	if innerStart < bodySpan.End {
		d.BodySpan = Span{innerStart + base, bodySpan.End + base}
	}

	if IsLiteralDirective(name) {
		if d.BodySpan.End > d.BodySpan.Start {
			t.Literal = append(t.Literal, d.BodySpan)
		}
		return d
	}
	if d.BodySpan.End > d.BodySpan.Start {
		parseLevel(src[innerStart:bodySpan.End], innerStart+base, opts, t, d)
	}
	return d
}

// parseDirectiveOptions parses the option block at the head of a directive
// body. A YAML frontmatter block (---\n...\n---) supersedes colon-style
// options; malformed YAML yields no options at all. The returned offset is
// the number of body bytes consumed by the option block.
func parseDirectiveOptions(body string) ([]Option, int) {
	if body == "" {
		return nil, 0
	}
	lines := splitLinesKeepOffsets(body)
	if len(lines) > 0 && strings.TrimRight(lines[0].text, " \t") == "---" {
		for i := 1; i < len(lines); i++ {
			if strings.TrimRight(lines[i].text, " \t") == "---" {
				block := body[lines[0].end:lines[i].start]
				return parseYAMLOptions(block), lines[i].end
			}
		}
		// Unterminated YAML block: treat the whole body as content.
		return nil, 0
	}

	var opts []Option
	consumed := 0
	for _, ln := range lines {
		if strings.TrimSpace(ln.text) == "" {
			consumed = ln.end
			break
		}
		m := colonOptionRe.FindStringSubmatch(ln.text)
		if m == nil {
			break
		}
		opts = append(opts, Option{Key: m[1], Value: strings.TrimSpace(m[2])})
		consumed = ln.end
	}
	if len(opts) == 0 {
		return nil, 0
	}
	return opts, consumed
}

// parseYAMLOptions decodes a YAML mapping preserving key order. Any decode
// failure discards all options.
func parseYAMLOptions(block string) []Option {
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(block), &node); err != nil {
		return nil
	}
	if len(node.Content) == 0 {
		return nil
	}
	mapping := node.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	var opts []Option
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k := mapping.Content[i]
		v := mapping.Content[i+1]
		opts = append(opts, Option{Key: k.Value, Value: v.Value})
	}
	return opts
}

type colonRegion struct {
	name string
	args string
	span Span
	body Span
}

// scanColonFences finds top-level :::{name} ... ::: regions. Nested fences
// must be strictly shorter than their enclosing fence, and a close run
// matches the nearest open fence of at most its length.
func scanColonFences(src string) []colonRegion {
	var regions []colonRegion
	lines := splitLinesKeepOffsets(src)

	type open struct {
		fenceLen int
		name     string
		args     string
		start    int
		bodyAt   int
	}
	var stack []open

	for _, ln := range lines {
		if m := colonOpenRe.FindStringSubmatch(ln.text); m != nil {
			stack = append(stack, open{
				fenceLen: len(m[1]),
				name:     m[2],
				args:     m[3],
				start:    ln.start,
				bodyAt:   ln.end,
			})
			continue
		}
		if m := colonCloseRe.FindStringSubmatch(ln.text); m != nil && len(stack) > 0 {
			top := stack[len(stack)-1]
			if len(m[1]) >= top.fenceLen {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 {
					regions = append(regions, colonRegion{
						name: top.name,
						args: top.args,
						span: Span{top.start, ln.end},
						body: Span{top.bodyAt, ln.start},
					})
				}
			}
			continue
		}
	}
	// Unclosed fences fall back to plain text: no region emitted.
	return regions
}

// scanLines finds (name)= anchors and % comments on the given masked text.
func scanLines(masked string, base int, opts Options, t *Tree) {
	for _, ln := range splitLinesKeepOffsets(masked) {
		if m := anchorLineRe.FindStringSubmatch(ln.text); m != nil {
			t.Anchors = append(t.Anchors, Anchor{
				Name: m[1],
				Span: Span{ln.start + base, ln.start + len(strings.TrimRight(ln.text, " \t")) + base},
			})
			continue
		}
		if opts.Comments && strings.HasPrefix(ln.text, "%") {
			t.Comments = append(t.Comments, Span{ln.start + base, ln.end + base})
		}
	}
}

type lineOffsets struct {
	text  string
	start int
	end   int // offset just past the trailing newline (or text end)
}

func splitLinesKeepOffsets(src string) []lineOffsets {
	var out []lineOffsets
	start := 0
	for start <= len(src) {
		nl := strings.IndexByte(src[start:], '\n')
		if nl < 0 {
			if start < len(src) {
				out = append(out, lineOffsets{text: src[start:], start: start, end: len(src)})
			}
			break
		}
		out = append(out, lineOffsets{text: src[start : start+nl], start: start, end: start + nl + 1})
		start += nl + 1
	}
	return out
}

// maskSpans blanks the given regions with spaces, preserving newlines so
// all byte offsets stay valid.
func maskSpans(src string, spans []Span) string {
	if len(spans) == 0 {
		return src
	}
	b := []byte(src)
	for _, s := range spans {
		for i := s.Start; i < s.End && i < len(b); i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

// fencedSpans computes the full block span (including fence lines) and the
// body span of a goldmark fenced code block, relative to src.
func fencedSpans(node *ast.FencedCodeBlock, src string) (span, body Span) {
	body, ok := linesSpan(node.Lines())
	if !ok {
		// Empty body: derive the block span from the info segment.
		if node.Info != nil {
			start := lineStartBefore(src, node.Info.Segment.Start)
			end := lineEndAfter(src, node.Info.Segment.Stop)
			if next := lineEndAfter(src, end); next > end {
				if line := strings.TrimSpace(src[end:next]); strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
					end = next
				}
			}
			return Span{start, end}, Span{}
		}
		return Span{}, Span{}
	}
	start := lineStartBefore(src, body.Start-1)
	end := body.End
	// The closing fence line follows the last body line when present.
	if end < len(src) {
		closeEnd := lineEndAfter(src, end)
		line := strings.TrimSpace(src[end:closeEnd])
		if strings.HasPrefix(line, "```") || strings.HasPrefix(line, "~~~") {
			end = closeEnd
		}
	}
	return Span{start, end}, body
}

// codeSpanSpan returns the content region of an inline code span: the
// union of its child text segments (backticks excluded).
func codeSpanSpan(node *ast.CodeSpan) (Span, bool) {
	start, end := -1, -1
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		t, ok := c.(*ast.Text)
		if !ok {
			continue
		}
		if start < 0 || t.Segment.Start < start {
			start = t.Segment.Start
		}
		if t.Segment.Stop > end {
			end = t.Segment.Stop
		}
	}
	if start < 0 {
		return Span{}, false
	}
	return Span{start, end}, true
}

func linesSpan(lines *gmtext.Segments) (Span, bool) {
	if lines == nil || lines.Len() == 0 {
		return Span{}, false
	}
	first := lines.At(0)
	last := lines.At(lines.Len() - 1)
	return Span{first.Start, last.Stop}, true
}

func headingFromNode(node *ast.Heading, src string, base int) (Heading, bool) {
	s, ok := linesSpan(node.Lines())
	if !ok {
		return Heading{}, false
	}
	start := lineStartBefore(src, s.Start)
	end := s.End
	if end > 0 && end <= len(src) && src[end-1] == '\n' {
		end--
	}
	return Heading{
		Level: node.Level,
		Text:  strings.TrimSpace(src[s.Start:end]),
		Span:  Span{start + base, end + base},
	}, true
}

func lineStartBefore(src string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(src) {
		pos = len(src)
	}
	i := strings.LastIndexByte(src[:pos], '\n')
	return i + 1
}

func lineEndAfter(src string, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	i := strings.IndexByte(src[pos:], '\n')
	if i < 0 {
		return len(src)
	}
	return pos + i + 1
}
