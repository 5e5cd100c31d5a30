// Package mcpserver exposes the vault over the Model Context Protocol so
// LLM tooling can search symbols, read documents and walk backlinks via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/moxide/internal/dailynote"
	"github.com/starford/moxide/internal/query"
	"github.com/starford/moxide/internal/session"
)

// Server wraps the MCP server with moxide tools.
type Server struct {
	mcp  *server.MCPServer
	sess *session.Session

	dailyFormat string
	dailyFolder string
}

// New creates an MCP server with all vault tools registered.
func New(sess *session.Session, dailyFormat, dailyFolder string) *Server {
	s := &Server{
		sess:        sess,
		dailyFormat: dailyFormat,
		dailyFolder: dailyFolder,
	}

	s.mcp = server.NewMCPServer(
		"moxide",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	s.mcp.AddTool(mcp.NewTool("search_symbols",
		mcp.WithDescription("Search anchors, headings, glossary terms and labels across the vault."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchSymbols)

	s.mcp.AddTool(mcp.NewTool("read_doc",
		mcp.WithDescription("Read the full content of a vault document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root-relative path (e.g. guides/setup.md)")),
	), s.readDoc)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("List the documents and positions that reference the given document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Root-relative path of the target document")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("daily_note_path",
		mcp.WithDescription("Resolve today's daily-note path using the configured date format."),
	), s.dailyNotePath)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchSymbols(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	idx := s.sess.Symbols()
	if idx == nil {
		return mcp.NewToolResultError("symbol index disabled"), nil
	}
	results, err := idx.Search(q, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDoc(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc := s.sess.Snapshot().DocByRel(rel)
	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", rel)), nil
	}
	return mcp.NewToolResultText(doc.Rope.String()), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap := s.sess.Snapshot()
	doc := snap.DocByRel(rel)
	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", rel)), nil
	}
	locs := query.FileBacklinks(snap, doc.Path)
	if len(locs) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	var lines []string
	for _, loc := range locs {
		if src := snap.Doc(loc.Path); src != nil {
			line, _ := src.Rope.LineCol(loc.Span.Start)
			lines = append(lines, fmt.Sprintf("%s:%d", src.Rel, line+1))
		}
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) dailyNotePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(dailynote.RelPath(s.dailyFormat, s.dailyFolder, time.Now())), nil
}
