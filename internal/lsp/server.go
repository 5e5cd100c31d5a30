package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/starford/moxide/internal/dailynote"
	"github.com/starford/moxide/internal/query"
	"github.com/starford/moxide/internal/session"
	"github.com/starford/moxide/internal/vault"
)

// ServerVersion is reported in the initialize handshake.
const ServerVersion = "0.1.0"

// Commands exposed through workspace/executeCommand.
const (
	CmdOpenDailyNote = "moxide.openDailyNote"
	CmdOpenConfig    = "moxide.openConfig"
	CmdCreateFile    = "moxide.createFile"
	CmdReindex       = "moxide.reindex"
)

// Runtime bundles everything the server needs once the vault root is known.
type Runtime struct {
	Session          *session.Session
	Query            query.Options
	HoverEnabled     bool
	NewFileFolder    string
	DailyNoteFormat  string
	DailyNotesFolder string
	// ConfigPath is the resolved configuration file, "" when absent.
	ConfigPath string
}

// Boot constructs the runtime for a discovered vault root. It runs once,
// during initialize; a failure there is fatal to the session.
type Boot func(root string) (*Runtime, error)

// Server is the protocol dispatcher. Requests run to completion on a single
// goroutine; queries execute against already-published snapshots and the
// CPU-heavy indexing work happens on the session's worker pool.
type Server struct {
	boot   Boot
	logger *slog.Logger

	rt     *Runtime
	writer *Writer

	cancelled map[string]bool
	shutdown  bool
}

// NewServer creates a server that boots its runtime on initialize.
func NewServer(boot Boot, logger *slog.Logger) *Server {
	return &Server{
		boot:      boot,
		logger:    logger,
		cancelled: map[string]bool{},
	}
}

// Serve runs the dispatch loop until exit or EOF. The returned error is nil
// after an orderly shutdown/exit sequence.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.writer = NewWriter(w)
	reader := bufio.NewReader(r)

	for {
		payload, err := ReadMessage(reader)
		if err != nil {
			if err == io.EOF || s.shutdown {
				return nil
			}
			return fmt.Errorf("lsp: read: %w", err)
		}
		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Warn("lsp: malformed message", slog.String("error", err.Error()))
			continue
		}
		if msg.Method == "exit" {
			if s.shutdown {
				return nil
			}
			return fmt.Errorf("lsp: exit before shutdown")
		}
		s.dispatch(ctx, &msg)
	}
}

func (s *Server) dispatch(ctx context.Context, msg *Message) {
	if msg.ID != nil && s.consumeCancel(msg.ID) {
		_ = s.writer.RespondError(msg.ID, CodeRequestCancelled, "request cancelled")
		return
	}

	var (
		result any
		err    *ResponseError
	)
	switch msg.Method {
	case "initialize":
		result, err = s.handleInitialize(msg.Params)
	case "initialized":
		s.handleInitialized(ctx)
	case "shutdown":
		s.shutdown = true
		result = nil
	case "$/cancelRequest":
		s.handleCancel(msg.Params)
	case "textDocument/didOpen":
		err = s.handleDidOpen(msg.Params)
	case "textDocument/didChange":
		err = s.handleDidChange(msg.Params)
	case "textDocument/didSave":
		err = s.handleDidSave(msg.Params)
	case "textDocument/didClose":
		err = s.handleDidClose(msg.Params)
	case "workspace/didChangeWatchedFiles":
		err = s.handleWatchedFiles(msg.Params)
	case "workspace/didChangeConfiguration":
		// Configuration reloads on restart; accepted silently.
	case "textDocument/completion":
		result, err = s.handleCompletion(msg.Params)
	case "completionItem/resolve":
		result = json.RawMessage(msg.Params)
	case "textDocument/definition":
		result, err = s.handleDefinition(msg.Params)
	case "textDocument/references":
		result, err = s.handleReferences(msg.Params)
	case "textDocument/hover":
		result, err = s.handleHover(msg.Params)
	case "textDocument/documentSymbol":
		result, err = s.handleDocumentSymbol(msg.Params)
	case "textDocument/rename":
		result, err = s.handleRename(msg.Params)
	case "textDocument/codeAction":
		result, err = s.handleCodeAction(msg.Params)
	case "workspace/symbol":
		result, err = s.handleWorkspaceSymbol(msg.Params)
	case "workspace/executeCommand":
		result, err = s.handleExecuteCommand(ctx, msg.Params)
	default:
		if msg.ID != nil {
			err = &ResponseError{Code: CodeMethodNotFound, Message: "unknown method " + msg.Method}
		}
	}

	if msg.ID == nil {
		return
	}
	if s.consumeCancel(msg.ID) {
		_ = s.writer.RespondError(msg.ID, CodeRequestCancelled, "request cancelled")
		return
	}
	if err != nil {
		_ = s.writer.RespondError(msg.ID, err.Code, err.Message)
		return
	}
	_ = s.writer.Respond(msg.ID, result)
}

func (s *Server) consumeCancel(id *json.RawMessage) bool {
	if id == nil {
		return false
	}
	key := string(*id)
	if s.cancelled[key] {
		delete(s.cancelled, key)
		return true
	}
	return false
}

func (s *Server) handleCancel(params json.RawMessage) {
	var p CancelParams
	if json.Unmarshal(params, &p) == nil && len(p.ID) > 0 {
		s.cancelled[string(p.ID)] = true
	}
}

func invalidParams(err error) *ResponseError {
	return &ResponseError{Code: CodeInvalidParams, Message: err.Error()}
}

func (s *Server) handleInitialize(params json.RawMessage) (any, *ResponseError) {
	if s.rt != nil {
		return nil, &ResponseError{Code: CodeInvalidRequest, Message: "already initialized"}
	}
	var p InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	start := URIToPath(p.RootURI)
	if start == "" {
		start = p.RootPath
	}
	if start == "" {
		start, _ = os.Getwd()
	}
	root := FindRoot(start)

	rt, err := s.boot(root)
	if err != nil {
		return nil, &ResponseError{Code: CodeInternalError, Message: err.Error()}
	}
	s.rt = rt
	s.logger.Info("lsp: initialized", slog.String("root", root))

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{OpenClose: true, Change: 2, Save: true},
			CompletionProvider: CompletionOptions{
				TriggerCharacters: []string{"[", "{", "`", "(", "#", ">", ":"},
				ResolveProvider:   true,
			},
			DefinitionProvider:      true,
			ReferencesProvider:      true,
			HoverProvider:           true,
			RenameProvider:          true,
			DocumentSymbolProvider:  true,
			WorkspaceSymbolProvider: true,
			CodeActionProvider: CodeActionOptions{
				CodeActionKinds: []string{query.CodeActionQuickFix},
			},
			ExecuteCommandProvider: ExecuteCommandOptions{
				Commands: []string{CmdOpenDailyNote, CmdOpenConfig, CmdCreateFile, CmdReindex},
			},
		},
		ServerInfo: ServerInfo{Name: "moxide", Version: ServerVersion},
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context) {
	if s.rt == nil {
		return
	}
	go func() {
		if err := s.rt.Session.Initialize(ctx); err != nil {
			s.logger.Error("lsp: indexing failed", slog.String("error", err.Error()))
			_ = s.writer.Notify("window/showMessage", ShowMessageParams{
				Type:    1, // error
				Message: "moxide: vault indexing failed: " + err.Error(),
			})
			return
		}
		s.publishAll()
	}()
	go func() {
		if err := s.rt.Session.Watch(ctx); err != nil {
			s.logger.Warn("lsp: watcher failed", slog.String("error", err.Error()))
		}
	}()
}

// FindRoot walks upward from start and returns the closest ancestor
// containing conf.py, .git or _toc.yml; when none is found, start itself
// (or its directory when start is a file).
func FindRoot(start string) string {
	dir := start
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		dir = filepath.Dir(dir)
	}
	for cur := dir; ; {
		for _, marker := range []string{"conf.py", ".git", "_toc.yml"} {
			if _, err := os.Stat(filepath.Join(cur, marker)); err == nil {
				return cur
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}

// --- document sync ---

func (s *Server) relOf(uri string) (string, bool) {
	if s.rt == nil {
		return "", false
	}
	abs := URIToPath(uri)
	rel, err := filepath.Rel(s.rt.Session.Root(), abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (s *Server) handleDidOpen(params json.RawMessage) *ResponseError {
	var p DidOpenTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	rel, ok := s.relOf(p.TextDocument.URI)
	if !ok {
		return invalidParams(fmt.Errorf("document outside vault: %s", p.TextDocument.URI))
	}
	s.rt.Session.Open(rel, p.TextDocument.Text)
	s.publishDiagnostics(rel)
	return nil
}

func (s *Server) handleDidChange(params json.RawMessage) *ResponseError {
	var p DidChangeTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	rel, ok := s.relOf(p.TextDocument.URI)
	if !ok {
		return invalidParams(fmt.Errorf("document outside vault: %s", p.TextDocument.URI))
	}
	changes := make([]session.TextChange, 0, len(p.ContentChanges))
	for _, c := range p.ContentChanges {
		tc := session.TextChange{Text: c.Text}
		if c.Range != nil {
			tc.HasRange = true
			tc.StartLine = c.Range.Start.Line
			tc.StartChar = c.Range.Start.Character
			tc.EndLine = c.Range.End.Line
			tc.EndChar = c.Range.End.Character
		}
		changes = append(changes, tc)
	}
	if err := s.rt.Session.Change(rel, changes); err != nil {
		return invalidParams(err)
	}
	s.publishDiagnostics(rel)
	return nil
}

func (s *Server) handleDidSave(params json.RawMessage) *ResponseError {
	var p DidSaveTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	if rel, ok := s.relOf(p.TextDocument.URI); ok {
		s.rt.Session.Save(rel)
		s.publishDiagnostics(rel)
	}
	return nil
}

func (s *Server) handleDidClose(params json.RawMessage) *ResponseError {
	var p DidCloseTextDocumentParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	if rel, ok := s.relOf(p.TextDocument.URI); ok {
		s.rt.Session.Close(rel)
		_ = s.writer.Notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
			URI:         p.TextDocument.URI,
			Diagnostics: []Diagnostic{},
		})
	}
	return nil
}

func (s *Server) handleWatchedFiles(params json.RawMessage) *ResponseError {
	var p DidChangeWatchedFilesParams
	if err := json.Unmarshal(params, &p); err != nil {
		return invalidParams(err)
	}
	for _, ev := range p.Changes {
		rel, ok := s.relOf(ev.URI)
		if !ok {
			continue
		}
		switch ev.Type {
		case FileDeleted:
			s.rt.Session.ExternalDelete(rel)
		default:
			s.rt.Session.ExternalChange(rel)
		}
		s.publishDiagnostics(rel)
	}
	return nil
}

// --- queries ---

// position resolution shared by the query handlers.
func (s *Server) docOffset(uri string, pos Position) (*vault.Snapshot, *vault.Document, int, *ResponseError) {
	if s.rt == nil {
		return nil, nil, 0, &ResponseError{Code: CodeInvalidRequest, Message: "not initialized"}
	}
	snap := s.rt.Session.Snapshot()
	doc := snap.Doc(URIToPath(uri))
	if doc == nil {
		return snap, nil, 0, nil
	}
	return snap, doc, doc.Rope.Offset(pos.Line, pos.Character), nil
}

func (s *Server) handleCompletion(params json.RawMessage) (any, *ResponseError) {
	var p TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, offset, rerr := s.docOffset(p.TextDocument.URI, p.Position)
	if rerr != nil || doc == nil {
		return CompletionList{Items: []CompletionItem{}}, rerr
	}
	items := query.Completions(snap, doc.Path, offset, s.rt.Query)
	out := make([]CompletionItem, 0, len(items))
	for i, it := range items {
		ci := CompletionItem{
			Label:    it.Label,
			Kind:     int(it.Kind),
			Detail:   it.Detail,
			SortText: fmt.Sprintf("%04d", i),
		}
		if it.Span.Start >= 0 && it.Span.End >= it.Span.Start {
			ci.TextEdit = &TextEdit{
				Range:   s.spanRange(doc, it.Span.Start, it.Span.End),
				NewText: it.Label,
			}
		}
		out = append(out, ci)
	}
	return CompletionList{Items: out}, nil
}

func (s *Server) handleDefinition(params json.RawMessage) (any, *ResponseError) {
	var p TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, offset, rerr := s.docOffset(p.TextDocument.URI, p.Position)
	if rerr != nil || doc == nil {
		return []Location{}, rerr
	}
	return s.locations(snap, query.GoToDefinition(snap, doc.Path, offset)), nil
}

func (s *Server) handleReferences(params json.RawMessage) (any, *ResponseError) {
	var p ReferenceParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, offset, rerr := s.docOffset(p.TextDocument.URI, p.Position)
	if rerr != nil || doc == nil {
		return []Location{}, rerr
	}
	return s.locations(snap, query.FindReferences(snap, doc.Path, offset)), nil
}

func (s *Server) handleHover(params json.RawMessage) (any, *ResponseError) {
	var p TextDocumentPositionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if s.rt != nil && !s.rt.HoverEnabled {
		return nil, nil
	}
	snap, doc, offset, rerr := s.docOffset(p.TextDocument.URI, p.Position)
	if rerr != nil || doc == nil {
		return nil, rerr
	}
	markdown := query.Hover(snap, doc.Path, offset, s.rt.Query)
	if markdown == "" {
		return nil, nil
	}
	return Hover{Contents: MarkupContent{Kind: "markdown", Value: markdown}}, nil
}

func (s *Server) handleDocumentSymbol(params json.RawMessage) (any, *ResponseError) {
	var p DocumentSymbolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, _, rerr := s.docOffset(p.TextDocument.URI, Position{})
	if rerr != nil || doc == nil {
		return []SymbolInformation{}, rerr
	}
	syms := query.DocumentSymbols(snap, doc.Path)
	out := make([]SymbolInformation, 0, len(syms))
	for _, sym := range syms {
		out = append(out, SymbolInformation{
			Name: sym.Name,
			Kind: symbolKind(sym.Kind),
			Location: Location{
				URI:   PathToURI(doc.Path),
				Range: s.spanRange(doc, sym.Span.Start, sym.Span.End),
			},
		})
	}
	return out, nil
}

func (s *Server) handleRename(params json.RawMessage) (any, *ResponseError) {
	var p RenameParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, offset, rerr := s.docOffset(p.TextDocument.URI, p.Position)
	if rerr != nil || doc == nil {
		return nil, rerr
	}
	edits := query.RenamePlan(snap, doc.Path, offset, p.NewName)
	if len(edits) == 0 {
		return nil, nil
	}
	changes := map[string][]TextEdit{}
	for _, e := range edits {
		target := snap.Doc(e.Path)
		if target == nil {
			continue
		}
		uri := PathToURI(e.Path)
		changes[uri] = append(changes[uri], TextEdit{
			Range:   s.spanRange(target, e.Span.Start, e.Span.End),
			NewText: e.NewText,
		})
	}
	return WorkspaceEdit{Changes: changes}, nil
}

func (s *Server) handleCodeAction(params json.RawMessage) (any, *ResponseError) {
	var p CodeActionParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	snap, doc, _, rerr := s.docOffset(p.TextDocument.URI, p.Range.Start)
	if rerr != nil || doc == nil {
		return []CodeAction{}, rerr
	}
	offset := doc.Rope.Offset(p.Range.Start.Line, p.Range.Start.Character)
	actions := query.CodeActions(snap, doc.Path, offset, s.rt.Query, s.rt.NewFileFolder)
	out := make([]CodeAction, 0, len(actions))
	for _, a := range actions {
		ca := CodeAction{Title: a.Title, Kind: a.Kind}
		if a.CreateFilePath != "" {
			ca.Command = &Command{
				Title:     a.Title,
				Command:   CmdCreateFile,
				Arguments: []any{a.CreateFilePath},
			}
		}
		if len(a.Edits) > 0 {
			changes := map[string][]TextEdit{}
			for _, e := range a.Edits {
				target := snap.Doc(e.Path)
				if target == nil {
					continue
				}
				uri := PathToURI(e.Path)
				changes[uri] = append(changes[uri], TextEdit{
					Range:   s.spanRange(target, e.Span.Start, e.Span.End),
					NewText: e.NewText,
				})
			}
			ca.Edit = &WorkspaceEdit{Changes: changes}
		}
		out = append(out, ca)
	}
	return out, nil
}

func (s *Server) handleWorkspaceSymbol(params json.RawMessage) (any, *ResponseError) {
	var p WorkspaceSymbolParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if s.rt == nil || s.rt.Session.Symbols() == nil {
		return []SymbolInformation{}, nil
	}
	syms, err := s.rt.Session.Symbols().Search(p.Query, 100)
	if err != nil {
		s.logger.Warn("lsp: symbol search failed", slog.String("error", err.Error()))
		return []SymbolInformation{}, nil
	}
	out := make([]SymbolInformation, 0, len(syms))
	for _, sym := range syms {
		pos := Position{Line: sym.Line, Character: sym.Col}
		out = append(out, SymbolInformation{
			Name: sym.Name,
			Kind: 15, // string
			Location: Location{
				URI:   PathToURI(sym.Path),
				Range: Range{Start: pos, End: pos},
			},
		})
	}
	return out, nil
}

func (s *Server) handleExecuteCommand(ctx context.Context, params json.RawMessage) (any, *ResponseError) {
	var p ExecuteCommandParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, invalidParams(err)
	}
	if s.rt == nil {
		return nil, &ResponseError{Code: CodeInvalidRequest, Message: "not initialized"}
	}
	switch p.Command {
	case CmdOpenDailyNote:
		rel := dailynote.RelPath(s.rt.DailyNoteFormat, s.rt.DailyNotesFolder, time.Now())
		if s.rt.Session.Snapshot().DocByRel(rel) == nil {
			title := "# " + dailynote.Format(s.rt.DailyNoteFormat, time.Now()) + "\n"
			if err := s.rt.Session.CreateFile(rel, []byte(title)); err != nil {
				return nil, &ResponseError{Code: CodeInternalError, Message: err.Error()}
			}
		}
		return PathToURI(filepath.Join(s.rt.Session.Root(), filepath.FromSlash(rel))), nil

	case CmdOpenConfig:
		if s.rt.ConfigPath == "" {
			return nil, nil
		}
		return PathToURI(s.rt.ConfigPath), nil

	case CmdCreateFile:
		if len(p.Arguments) == 0 {
			return nil, invalidParams(fmt.Errorf("missing path argument"))
		}
		var rel string
		if err := json.Unmarshal(p.Arguments[0], &rel); err != nil {
			return nil, invalidParams(err)
		}
		if err := s.rt.Session.CreateFile(rel, []byte("")); err != nil {
			return nil, &ResponseError{Code: CodeInternalError, Message: err.Error()}
		}
		return PathToURI(filepath.Join(s.rt.Session.Root(), filepath.FromSlash(rel))), nil

	case CmdReindex:
		go func() {
			if err := s.rt.Session.Reindex(ctx); err != nil {
				s.logger.Warn("lsp: reindex failed", slog.String("error", err.Error()))
			}
		}()
		return nil, nil
	}
	return nil, invalidParams(fmt.Errorf("unknown command %q", p.Command))
}

// --- conversions ---

func (s *Server) spanRange(doc *vault.Document, start, end int) Range {
	sl, sc := doc.Rope.LineCol(start)
	el, ec := doc.Rope.LineCol(end)
	return Range{Start: Position{Line: sl, Character: sc}, End: Position{Line: el, Character: ec}}
}

func (s *Server) locations(snap *vault.Snapshot, locs []query.Location) []Location {
	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		doc := snap.Doc(l.Path)
		if doc == nil {
			continue
		}
		out = append(out, Location{
			URI:   PathToURI(l.Path),
			Range: s.spanRange(doc, l.Span.Start, l.Span.End),
		})
	}
	return out
}

func symbolKind(kind vault.TargetKind) int {
	switch kind {
	case vault.THeading:
		return 15 // string
	case vault.TAnchor:
		return 14 // constant
	case vault.TGlossary:
		return 8 // field
	case vault.TMath, vault.TFigure:
		return 14 // constant
	case vault.TFootnote, vault.TLinkRef, vault.TBlock:
		return 20 // key
	}
	return 15
}

// publishDiagnostics computes and pushes diagnostics for one document.
func (s *Server) publishDiagnostics(rel string) {
	if s.rt == nil {
		return
	}
	snap := s.rt.Session.Snapshot()
	doc := snap.DocByRel(rel)
	if doc == nil {
		return
	}
	diags := query.Diagnostics(snap, doc.Path, s.rt.Query)
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, Diagnostic{
			Range:    s.spanRange(doc, d.Span.Start, d.Span.End),
			Severity: int(d.Severity),
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	_ = s.writer.Notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         PathToURI(doc.Path),
		Diagnostics: out,
	})
}

// publishAll pushes diagnostics for every indexed document, used after the
// initial index completes.
func (s *Server) publishAll() {
	if s.rt == nil {
		return
	}
	snap := s.rt.Session.Snapshot()
	for _, doc := range snap.Docs() {
		s.publishDiagnostics(doc.Rel)
	}
}
