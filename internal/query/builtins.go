package query

// Built-in MyST directive and role names offered by completion. Unknown
// names are still parsed structurally; these lists only seed suggestions.
var builtinDirectives = []string{
	"admonition", "attention", "caution", "code", "code-block", "csv-table",
	"danger", "dropdown", "epigraph", "error", "figure", "glossary", "hint",
	"image", "important", "include", "list-table", "literalinclude", "margin",
	"math", "note", "raw", "rubric", "seealso", "sidebar", "tab-item",
	"tab-set", "table", "tip", "toctree", "warning",
}

var builtinRoles = []string{
	"abbr", "code", "command", "doc", "download", "eq", "file", "guilabel",
	"kbd", "math", "menuselection", "numref", "ref", "sub", "sup", "term",
}
