package internal

import (
	"os"
	"path/filepath"
	"testing"

	pkgconfig "github.com/starford/moxide/pkg/config"
)

func TestDefaultSettingsValidate(t *testing.T) {
	s := NewDefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.Dailynote != "%Y-%m-%d" || s.CaseMatching != "smart" || s.HoverLines != 10 {
		t.Errorf("defaults = %+v", s)
	}
}

func TestValidateRejectsBadCaseMatching(t *testing.T) {
	s := NewDefaultSettings()
	s.CaseMatching = "loud"
	if err := s.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestLayeredLoadFirstSourceWins(t *testing.T) {
	dir := t.TempDir()
	vaultCfg := filepath.Join(dir, ".moxide.toml")
	userCfg := filepath.Join(dir, "settings.toml")
	if err := os.WriteFile(vaultCfg, []byte("dailynote = \"%d-%m-%Y\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(userCfg, []byte("dailynote = \"%Y\"\ndaily_notes_folder = \"journal\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewDefaultSettings()
	if err := pkgconfig.Load(s, vaultCfg, userCfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// The vault file wins where both set a value.
	if s.Dailynote != "%d-%m-%Y" {
		t.Errorf("dailynote = %q", s.Dailynote)
	}
	// The user file fills values the vault file leaves unset.
	if s.DailyNotesFolder != "journal" {
		t.Errorf("daily_notes_folder = %q", s.DailyNotesFolder)
	}
}

func TestMissingFilesAreNotErrors(t *testing.T) {
	s := NewDefaultSettings()
	if err := pkgconfig.Load(s, "/nonexistent/a.toml", "/nonexistent/b.toml"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Dailynote != "%Y-%m-%d" {
		t.Errorf("defaults lost: %+v", s)
	}
}

func TestMalformedTOMLIsError(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, ".moxide.toml")
	if err := os.WriteFile(bad, []byte("dailynote = [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewDefaultSettings()
	if err := pkgconfig.Load(s, bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestSettingsPathsOrder(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	paths := SettingsPaths("/vault")
	if len(paths) != 2 {
		t.Fatalf("paths = %v", paths)
	}
	if paths[0] != filepath.Join("/vault", ".moxide.toml") {
		t.Errorf("paths[0] = %q", paths[0])
	}
	if paths[1] != filepath.Join("/tmp/xdg", "moxide", "settings.toml") {
		t.Errorf("paths[1] = %q", paths[1])
	}
}
