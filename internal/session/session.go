// Package session ties the document graph engine together: initial parallel
// indexing, incremental updates from editor and watcher events, and atomic
// snapshot publication.
//
// Mutations are serialized per session; every committed mutation publishes a
// new immutable snapshot handle. Queries read whichever snapshot they were
// handed and never block a mutation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/index"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/rope"
	"github.com/starford/moxide/internal/storage"
	"github.com/starford/moxide/internal/vault"
)

// State is the session lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateIndexing
	StateReady
	StateReindexing
)

// Config wires a session's collaborators.
type Config struct {
	Store      storage.Provider
	Root       string
	Logger     *slog.Logger
	ParserOpts parser.Options
	ExtractCfg extract.Config
	CaseMode   vault.Case
	// Symbols is optional; when set, every commit feeds the workspace
	// symbol index.
	Symbols index.SymbolIndex
	// Events is optional; called after watcher-driven commits with kind
	// "created", "updated" or "deleted".
	Events func(kind, rel string)
}

// TextChange is one incremental edit in editor coordinates (UTF-16 columns).
// A change without HasRange replaces the whole document.
type TextChange struct {
	HasRange  bool
	StartLine int
	StartChar int
	EndLine   int
	EndChar   int
	Text      string
}

// Session owns the current snapshot and the set of editor-opened documents
// whose in-memory text is authoritative over disk.
type Session struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	open      map[string]*rope.Rope // canonical path -> authoritative rope
	revs      map[string]uint64
	checksums map[string]string // canonical path -> content digest

	snap  atomic.Pointer[vault.Snapshot]
	state atomic.Int32
}

// New creates an uninitialized session.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		logger:    cfg.Logger,
		open:      map[string]*rope.Rope{},
		revs:      map[string]uint64{},
		checksums: map[string]string{},
	}
	s.snap.Store(vault.New(cfg.Root, cfg.CaseMode))
	return s
}

// Snapshot returns the current published snapshot.
func (s *Session) Snapshot() *vault.Snapshot { return s.snap.Load() }

// State returns the lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Root returns the vault root.
func (s *Session) Root() string { return s.cfg.Root }

// Symbols returns the workspace symbol index, which may be nil.
func (s *Session) Symbols() index.SymbolIndex { return s.cfg.Symbols }

// Canonical converts a root-relative slash path into the canonical document
// path used as graph identity.
func (s *Session) Canonical(rel string) string {
	return filepath.Join(s.cfg.Root, filepath.FromSlash(rel))
}

// Initialize walks the vault and builds the first snapshot. Documents parse
// in parallel; one snapshot is published when the walk completes.
func (s *Session) Initialize(ctx context.Context) error {
	return s.indexAll(ctx, StateIndexing)
}

// Reindex rebuilds the whole vault, preserving editor-opened ropes.
func (s *Session) Reindex(ctx context.Context) error {
	return s.indexAll(ctx, StateReindexing)
}

func (s *Session) indexAll(ctx context.Context, via State) error {
	s.state.Store(int32(via))
	infos, err := s.cfg.Store.List("")
	if err != nil {
		return fmt.Errorf("session: list vault: %w", err)
	}

	var (
		docMu sync.Mutex
		docs  []*vault.Document
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, info := range infos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, ok := s.openText(s.Canonical(info.Rel))
			if !ok {
				data, err := s.cfg.Store.Read(info.Rel)
				if err != nil {
					s.logger.Warn("index: read failed",
						slog.String("path", info.Rel),
						slog.String("error", err.Error()))
					return nil
				}
				text = string(data)
			}
			d := s.parseDoc(info.Rel, text, 1)
			docMu.Lock()
			docs = append(docs, d)
			docMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("session: index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		d.Rev = s.revs[d.Path] + 1
	}
	snap := vault.New(s.cfg.Root, s.cfg.CaseMode).WithDocuments(docs)
	for _, d := range docs {
		s.revs[d.Path] = d.Rev
		s.checksums[d.Path] = storage.Checksum([]byte(d.Rope.String()))
		s.feedSymbols(d)
	}
	s.snap.Store(snap)
	s.state.Store(int32(StateReady))
	s.logger.Info("session: indexed",
		slog.Int("documents", len(docs)),
		slog.Uint64("version", snap.Version()))
	return nil
}

// Open registers an editor-opened document; its rope becomes authoritative.
func (s *Session) Open(rel, text string) {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[canonical] = rope.New(text)
	s.commitLocked(rel, s.open[canonical])
}

// Change applies incremental edits in editor order and commits the result.
func (s *Session) Change(rel string, changes []TextChange) error {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.open[canonical]
	if !ok {
		return fmt.Errorf("session: change for unopened document %s", rel)
	}
	for _, ch := range changes {
		if !ch.HasRange {
			r = rope.New(ch.Text)
			continue
		}
		start := r.Offset(ch.StartLine, ch.StartChar)
		end := r.Offset(ch.EndLine, ch.EndChar)
		r = r.Apply(start, end, ch.Text)
	}
	s.open[canonical] = r
	s.commitLocked(rel, r)
	return nil
}

// Save recommits the document (the rope already holds the saved text).
func (s *Session) Save(rel string) {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.open[canonical]; ok {
		s.commitLocked(rel, r)
	}
}

// Close drops editor authority; disk content takes over again (or the
// document disappears if the file never existed on disk).
func (s *Session) Close(rel string) {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, canonical)
	data, err := s.cfg.Store.Read(rel)
	if err != nil {
		s.removeLocked(rel)
		return
	}
	s.commitLocked(rel, rope.New(string(data)))
}

// ExternalChange reindexes one document after a disk change. Editor-opened
// documents ignore disk changes.
func (s *Session) ExternalChange(rel string) {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, opened := s.open[canonical]; opened {
		return
	}
	data, err := s.cfg.Store.Read(rel)
	if err != nil {
		s.logger.Warn("session: external read failed",
			slog.String("path", rel), slog.String("error", err.Error()))
		return
	}
	if s.checksums[canonical] == storage.Checksum(data) {
		return
	}
	kind := "updated"
	if s.snap.Load().Doc(canonical) == nil {
		kind = "created"
	}
	s.commitLocked(rel, rope.New(string(data)))
	if s.cfg.Events != nil {
		s.cfg.Events(kind, rel)
	}
}

// ExternalDelete removes a document deleted on disk, unless an editor still
// owns it.
func (s *Session) ExternalDelete(rel string) {
	canonical := s.Canonical(rel)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, opened := s.open[canonical]; opened {
		return
	}
	if s.snap.Load().Doc(canonical) == nil {
		return
	}
	s.removeLocked(rel)
	if s.cfg.Events != nil {
		s.cfg.Events("deleted", rel)
	}
}

// CreateFile writes a new vault file and indexes it, for code actions.
func (s *Session) CreateFile(rel string, content []byte) error {
	if err := s.cfg.Store.Write(rel, content); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitLocked(rel, rope.New(string(content)))
	return nil
}

// commitLocked parses, extracts and publishes a new snapshot for one
// document. Callers hold s.mu.
func (s *Session) commitLocked(rel string, r *rope.Rope) {
	canonical := s.Canonical(rel)
	rev := s.revs[canonical] + 1
	s.revs[canonical] = rev

	d := s.parseDoc(rel, r.String(), rev)
	d.Rope = r
	s.checksums[canonical] = storage.Checksum([]byte(r.String()))

	snap := s.snap.Load().WithDocument(d)
	s.feedSymbols(d)
	s.snap.Store(snap)
	s.logger.Debug("session: committed",
		slog.String("path", rel),
		slog.Uint64("rev", rev),
		slog.Uint64("version", snap.Version()))
}

func (s *Session) removeLocked(rel string) {
	canonical := s.Canonical(rel)
	delete(s.revs, canonical)
	delete(s.checksums, canonical)
	if s.cfg.Symbols != nil {
		if err := s.cfg.Symbols.DeleteDoc(canonical); err != nil {
			s.logger.Warn("session: symbol delete failed", slog.String("error", err.Error()))
		}
	}
	s.snap.Store(s.snap.Load().WithoutDocument(canonical))
}

func (s *Session) parseDoc(rel, text string, rev uint64) *vault.Document {
	tree := parser.Parse(text, s.cfg.ParserOpts)
	return &vault.Document{
		Path: s.Canonical(rel),
		Rel:  rel,
		Rev:  rev,
		Rope: rope.New(text),
		Ex:   extract.Extract(tree, s.cfg.ExtractCfg),
	}
}

func (s *Session) feedSymbols(d *vault.Document) {
	if s.cfg.Symbols == nil {
		return
	}
	var syms []index.Symbol
	for _, t := range vault.DocTargets(d) {
		if t.Kind == vault.TFile || t.Kind == vault.TSubstitution {
			continue
		}
		name := t.Name
		if t.Kind == vault.THeading {
			name = t.Text
		}
		line, col := d.Rope.LineCol(t.Span.Start)
		syms = append(syms, index.Symbol{
			Path: d.Path,
			Name: name,
			Kind: t.Kind.String(),
			Line: line,
			Col:  col,
		})
	}
	if err := s.cfg.Symbols.ReplaceDoc(d.Path, syms); err != nil {
		s.logger.Warn("session: symbol index failed",
			slog.String("path", d.Rel), slog.String("error", err.Error()))
	}
}

func (s *Session) openText(canonical string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.open[canonical]
	if !ok {
		return "", false
	}
	return r.String(), true
}
