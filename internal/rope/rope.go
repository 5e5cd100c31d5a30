// Package rope implements the per-document text buffer. A Rope is an
// immutable snapshot: edits produce a new Rope and readers holding an old
// one keep a consistent view. It maintains a line index for converting
// between byte offsets and (line, UTF-16 column) editor positions.
package rope

import (
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Rope is an immutable text snapshot with a line index.
type Rope struct {
	text string
	// lineStarts[i] is the byte offset of the first byte of line i.
	// lineStarts[0] is always 0, even for empty text.
	lineStarts []int
}

// New builds a Rope over text.
func New(text string) *Rope {
	return &Rope{text: text, lineStarts: indexLines(text)}
}

func indexLines(text string) []int {
	starts := make([]int, 1, strings.Count(text, "\n")+1)
	starts[0] = 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// String returns the full text.
func (r *Rope) String() string { return r.text }

// Len returns the text length in bytes.
func (r *Rope) Len() int { return len(r.text) }

// LineCount returns the number of lines. Text without a trailing newline
// still counts its final partial line.
func (r *Rope) LineCount() int { return len(r.lineStarts) }

// Line returns the content of line i without its trailing newline.
// Out-of-range lines yield "".
func (r *Rope) Line(i int) string {
	if i < 0 || i >= len(r.lineStarts) {
		return ""
	}
	start := r.lineStarts[i]
	end := len(r.text)
	if i+1 < len(r.lineStarts) {
		end = r.lineStarts[i+1]
	}
	return strings.TrimRight(r.text[start:end], "\n")
}

// LineStart returns the byte offset of the first byte of line i, clamped
// to the text length.
func (r *Rope) LineStart(i int) int {
	if i < 0 {
		return 0
	}
	if i >= len(r.lineStarts) {
		return len(r.text)
	}
	return r.lineStarts[i]
}

// Slice returns text[start:end], clamping both bounds.
func (r *Rope) Slice(start, end int) string {
	start = clamp(start, 0, len(r.text))
	end = clamp(end, start, len(r.text))
	return r.text[start:end]
}

// LineCol converts a byte offset into a (line, UTF-16 column) pair.
// Offsets beyond the end map to the final position.
func (r *Rope) LineCol(offset int) (line, col int) {
	offset = clamp(offset, 0, len(r.text))
	line = r.lineForOffset(offset)
	start := r.lineStarts[line]
	col = utf16Len(r.text[start:offset])
	return line, col
}

// Offset converts a (line, UTF-16 column) pair into a byte offset. Columns
// past the end of the line clamp to the line end; lines past the end clamp
// to the text end.
func (r *Rope) Offset(line, col int) int {
	if line < 0 {
		return 0
	}
	if line >= len(r.lineStarts) {
		return len(r.text)
	}
	start := r.lineStarts[line]
	end := len(r.text)
	if line+1 < len(r.lineStarts) {
		end = r.lineStarts[line+1] - 1 // stop before the newline
	}
	off := start
	for off < end && col > 0 {
		ru, size := utf8.DecodeRuneInString(r.text[off:])
		units := 1
		if ru > 0xFFFF {
			units = 2
		}
		if units > col {
			break
		}
		col -= units
		off += size
	}
	return off
}

// Apply replaces text[start:end] with repl and returns the new snapshot.
// Bounds are clamped into the current text.
func (r *Rope) Apply(start, end int, repl string) *Rope {
	start = clamp(start, 0, len(r.text))
	end = clamp(end, start, len(r.text))
	var b strings.Builder
	b.Grow(len(r.text) - (end - start) + len(repl))
	b.WriteString(r.text[:start])
	b.WriteString(repl)
	b.WriteString(r.text[end:])
	return New(b.String())
}

func (r *Rope) lineForOffset(offset int) int {
	lo, hi := 0, len(r.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if r.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func utf16Len(s string) int {
	n := 0
	for _, ru := range s {
		n += len(utf16.Encode([]rune{ru}))
	}
	return n
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
