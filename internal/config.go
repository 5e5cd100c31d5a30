// Package internal provides the server's configuration, wiring and runtime
// entry point.
package internal

import (
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Settings holds every user-configurable option. Values load from TOML
// files via pkg/config; unset values keep the defaults from NewDefaultSettings.
type Settings struct {
	// Dailynote is the strftime-style date format for daily-note names.
	Dailynote        string `toml:"dailynote"`
	DailyNotesFolder string `toml:"daily_notes_folder"`
	// NewFileFolderPath is where code-action-created files land.
	NewFileFolderPath string `toml:"new_file_folder_path"`

	HeadingCompletions bool `toml:"heading_completions"`
	TitleHeadings      bool `toml:"title_headings"`

	// CaseMatching is one of ignore, smart or respect.
	CaseMatching string `toml:"case_matching"`

	UnresolvedDiagnostics    bool `toml:"unresolved_diagnostics"`
	IncludeMDExtensionMdLink bool `toml:"include_md_extension_md_link"`
	LinkFilenamesOnly        bool `toml:"link_filenames_only"`
	TagsInCodeblocks         bool `toml:"tags_in_codeblocks"`
	ReferencesInCodeblocks   bool `toml:"references_in_codeblocks"`
	Hover                    bool `toml:"hover"`
	InlayHints               bool `toml:"inlay_hints"`
	SemanticTokens           bool `toml:"semantic_tokens"`

	// HoverLines caps hover excerpts.
	HoverLines int `toml:"hover_lines"`

	// DebugHTTP, when set to a listen address, enables the loopback debug
	// server.
	DebugHTTP string `toml:"debug_http"`

	// ExtraDirectives and ExtraRoles extend the built-in completion sets.
	ExtraDirectives []string `toml:"extra_directives"`
	ExtraRoles      []string `toml:"extra_roles"`
}

// Validate validates the settings.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.CaseMatching, validation.In("", "ignore", "smart", "respect")),
		validation.Field(&s.HoverLines, validation.Min(0)),
		validation.Field(&s.Dailynote, validation.Required),
	)
}

// NewDefaultSettings returns Settings with the documented defaults.
func NewDefaultSettings() *Settings {
	return &Settings{
		Dailynote:             "%Y-%m-%d",
		CaseMatching:          "smart",
		HeadingCompletions:    true,
		TitleHeadings:         true,
		UnresolvedDiagnostics: true,
		Hover:                 true,
		InlayHints:            true,
		SemanticTokens:        true,
		HoverLines:            10,
	}
}

// SettingsPaths returns the configuration files for a vault root in
// priority order: the vault-local file, then the user-level file.
func SettingsPaths(root string) []string {
	paths := []string{filepath.Join(root, ".moxide.toml")}
	if dir := userConfigDir(); dir != "" {
		paths = append(paths, filepath.Join(dir, "moxide", "settings.toml"))
	}
	return paths
}

func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return dir
}
