package session

import (
	"context"
	"testing"

	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/query"
	"github.com/starford/moxide/internal/testutil"
)

func testSession(t *testing.T, files map[string]string) *Session {
	t.Helper()
	dir, store := testutil.TestVault(t, files)
	s := New(Config{
		Store:      store,
		Root:       dir,
		ParserOpts: parser.DefaultOptions(),
	})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return s
}

func TestInitializeIndexesVault(t *testing.T) {
	s := testSession(t, map[string]string{
		"a.md":        "(install)=\n# Installation\n",
		"sub/b.md":    "See {ref}`install`.\n",
		"ignored.txt": "not markdown",
	})
	if s.State() != StateReady {
		t.Fatalf("state = %v", s.State())
	}
	snap := s.Snapshot()
	if len(snap.Docs()) != 2 {
		t.Fatalf("docs = %d", len(snap.Docs()))
	}
	b := snap.DocByRel("sub/b.md")
	if b == nil {
		t.Fatal("b.md missing")
	}
	if len(snap.Edges(b.Path)) != 1 {
		t.Errorf("edges = %+v", snap.Edges(b.Path))
	}
}

func TestOpenChangePublishesSnapshots(t *testing.T) {
	s := testSession(t, map[string]string{"p.md": "{ref}`t`\n"})
	snap0 := s.Snapshot()
	p := snap0.DocByRel("p.md")
	if diags := query.Diagnostics(snap0, p.Path, query.DefaultOptions()); len(diags) != 1 {
		t.Fatalf("diagnostics = %+v", diags)
	}

	s.Open("p.md", "{ref}`t`\n")
	// Insert "(t)=\n" at the document start.
	err := s.Change("p.md", []TextChange{{
		HasRange: true, StartLine: 0, StartChar: 0, EndLine: 0, EndChar: 0,
		Text: "(t)=\n",
	}})
	if err != nil {
		t.Fatalf("Change: %v", err)
	}

	snap1 := s.Snapshot()
	if snap1.Version() <= snap0.Version() {
		t.Fatal("no new snapshot published")
	}
	if diags := query.Diagnostics(snap1, p.Path, query.DefaultOptions()); len(diags) != 0 {
		t.Errorf("diagnostics after edit = %+v", diags)
	}
	// The old snapshot still answers consistently.
	if diags := query.Diagnostics(snap0, p.Path, query.DefaultOptions()); len(diags) != 1 {
		t.Errorf("old snapshot changed: %+v", diags)
	}
}

func TestOpenDocumentAuthoritativeOverDisk(t *testing.T) {
	s := testSession(t, map[string]string{"a.md": "# Disk\n"})
	s.Open("a.md", "# Editor\n")

	// A disk change must not clobber the editor's rope.
	s.ExternalChange("a.md")
	d := s.Snapshot().DocByRel("a.md")
	if d.Rope.String() != "# Editor\n" {
		t.Errorf("text = %q", d.Rope.String())
	}
}

func TestCloseRevertsToDisk(t *testing.T) {
	s := testSession(t, map[string]string{"a.md": "# Disk\n"})
	s.Open("a.md", "# Editor\n")
	s.Close("a.md")
	d := s.Snapshot().DocByRel("a.md")
	if d == nil || d.Rope.String() != "# Disk\n" {
		t.Errorf("doc after close = %+v", d)
	}
}

func TestCloseRemovesOutOfTreeDocument(t *testing.T) {
	s := testSession(t, map[string]string{})
	s.Open("scratch.md", "# Never saved\n")
	if s.Snapshot().DocByRel("scratch.md") == nil {
		t.Fatal("open should index the document")
	}
	s.Close("scratch.md")
	if s.Snapshot().DocByRel("scratch.md") != nil {
		t.Error("closed unsaved doc should be gone")
	}
}

func TestExternalDelete(t *testing.T) {
	s := testSession(t, map[string]string{
		"a.md": "(x)=\n",
		"b.md": "{ref}`x`\n",
	})
	b := s.Snapshot().DocByRel("b.md")
	s.ExternalDelete("a.md")

	snap := s.Snapshot()
	if snap.DocByRel("a.md") != nil {
		t.Error("a.md still present")
	}
	if len(snap.Edges(b.Path)) != 0 {
		t.Errorf("stale edges = %+v", snap.Edges(b.Path))
	}
}

func TestChangeOrderingPerDocument(t *testing.T) {
	s := testSession(t, map[string]string{})
	s.Open("o.md", "abc\n")
	_ = s.Change("o.md", []TextChange{
		{HasRange: true, StartLine: 0, StartChar: 3, EndLine: 0, EndChar: 3, Text: "d"},
		{HasRange: true, StartLine: 0, StartChar: 4, EndLine: 0, EndChar: 4, Text: "e"},
	})
	d := s.Snapshot().DocByRel("o.md")
	if d.Rope.String() != "abcde\n" {
		t.Errorf("text = %q", d.Rope.String())
	}
}

func TestReindexKeepsOpenDocuments(t *testing.T) {
	s := testSession(t, map[string]string{"a.md": "# Disk\n"})
	s.Open("a.md", "# Editor\n")
	if err := s.Reindex(context.Background()); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	d := s.Snapshot().DocByRel("a.md")
	if d.Rope.String() != "# Editor\n" {
		t.Errorf("text = %q", d.Rope.String())
	}
}

func TestCreateFile(t *testing.T) {
	s := testSession(t, map[string]string{})
	if err := s.CreateFile("new/doc.md", []byte("# New\n")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if s.Snapshot().DocByRel("new/doc.md") == nil {
		t.Error("created file not indexed")
	}
}
