package dailynote

import (
	"testing"
	"time"
)

var ref = time.Date(2026, time.August, 5, 9, 7, 0, 0, time.UTC)

func TestFormat(t *testing.T) {
	cases := []struct {
		layout string
		want   string
	}{
		{"%Y-%m-%d", "2026-08-05"},
		{"%y%m%d", "260805"},
		{"%Y/%B/%d", "2026/August/05"},
		{"%a %b %d", "Wed Aug 05"},
		{"plain", "plain"},
		{"%%Y", "%Y"},
		{"%Q", "%Q"},
	}
	for _, c := range cases {
		if got := Format(c.layout, ref); got != c.want {
			t.Errorf("Format(%q) = %q, want %q", c.layout, got, c.want)
		}
	}
}

func TestRelPath(t *testing.T) {
	if got := RelPath("%Y-%m-%d", "", ref); got != "2026-08-05.md" {
		t.Errorf("RelPath = %q", got)
	}
	if got := RelPath("%Y-%m-%d", "daily", ref); got != "daily/2026-08-05.md" {
		t.Errorf("RelPath = %q", got)
	}
}
