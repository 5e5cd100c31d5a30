package extract

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the parsed leading YAML block of a document.
type Frontmatter struct {
	Title   string
	Tags    []string
	Aliases []string
	// Substitutions merges the top-level substitutions map with
	// myst.substitutions; the myst block wins on conflicting keys.
	Substitutions map[string]string
	// Raw keeps every user field opaquely.
	Raw map[string]any
}

// ParseFrontmatter reads a ---…--- YAML fence at offset zero. Invalid YAML
// or a missing fence yields nil.
func ParseFrontmatter(text string) *Frontmatter {
	const delim = "---"
	if !strings.HasPrefix(text, delim+"\n") {
		return nil
	}
	rest := text[len(delim)+1:]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil
	}
	block := rest[:idx]

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil || raw == nil {
		return nil
	}

	fm := &Frontmatter{Raw: raw, Substitutions: map[string]string{}}
	if t, ok := raw["title"].(string); ok {
		fm.Title = t
	}
	fm.Tags = stringList(raw["tags"])
	fm.Aliases = stringList(raw["aliases"])

	mergeSubs(fm.Substitutions, raw["substitutions"])
	if myst, ok := raw["myst"].(map[string]any); ok {
		mergeSubs(fm.Substitutions, myst["substitutions"])
	}
	return fm
}

func stringList(v any) []string {
	var out []string
	switch list := v.(type) {
	case []any:
		for _, item := range list {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		if strings.TrimSpace(list) != "" {
			out = append(out, strings.TrimSpace(list))
		}
	}
	return out
}

func mergeSubs(dst map[string]string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	for k, val := range m {
		switch s := val.(type) {
		case string:
			dst[k] = s
		case int, int64, float64, bool:
			dst[k] = strings.TrimSpace(strings.Trim(strings.ReplaceAll(asString(s), "\n", " "), " "))
		}
	}
}

func asString(v any) string {
	b, _ := yaml.Marshal(v)
	return strings.TrimRight(string(b), "\n")
}
