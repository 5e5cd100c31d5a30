package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/moxide/internal/api"
	"github.com/starford/moxide/internal/apperr"
	"github.com/starford/moxide/internal/dailynote"
	"github.com/starford/moxide/internal/extract"
	"github.com/starford/moxide/internal/index"
	"github.com/starford/moxide/internal/lsp"
	"github.com/starford/moxide/internal/mcpserver"
	"github.com/starford/moxide/internal/parser"
	"github.com/starford/moxide/internal/query"
	"github.com/starford/moxide/internal/session"
	"github.com/starford/moxide/internal/sse"
	"github.com/starford/moxide/internal/storage"
	"github.com/starford/moxide/internal/vault"
	pkgconfig "github.com/starford/moxide/pkg/config"
)

// NewLogger builds the structured stderr logger. Stdout carries the LSP
// byte stream and must stay clean.
func NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("MOXIDE_LOG")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	case "trace":
		level = slog.LevelDebug - 4
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// LoadSettings resolves and loads the layered configuration for a vault
// root. The returned path is the highest-priority file that exists.
func LoadSettings(root, override string) (*Settings, string, error) {
	settings := NewDefaultSettings()
	paths := SettingsPaths(root)
	if override != "" {
		paths = []string{override}
	}
	if err := pkgconfig.Load(settings, paths...); err != nil {
		return nil, "", fmt.Errorf("%w: %v", apperr.ErrConfig, err)
	}
	return settings, pkgconfig.FirstExisting(paths...), nil
}

// buildRuntime wires the session and its collaborators for a vault root.
func buildRuntime(ctx context.Context, root, settingsPath string, logger *slog.Logger) (*lsp.Runtime, *session.Session, *Settings, error) {
	settings, configPath, err := LoadSettings(root, settingsPath)
	if err != nil {
		return nil, nil, nil, err
	}

	store, err := storage.NewFS(root)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init storage: %w", err)
	}

	var symbols index.SymbolIndex
	if db, err := index.Open(); err != nil {
		logger.Warn("symbol index unavailable", slog.String("error", err.Error()))
	} else {
		symbols = db
	}

	var events func(kind, rel string)
	var broker *sseBroker
	if settings.DebugHTTP != "" {
		broker = newSSEBroker()
		events = broker.publish
	}

	sess := session.New(session.Config{
		Store:  store,
		Root:   store.Root(),
		Logger: logger,
		ParserOpts: parser.Options{
			ColonFence: true,
			Comments:   true,
		},
		ExtractCfg: extract.Config{
			TagsInCode: settings.TagsInCodeblocks,
			RefsInCode: settings.ReferencesInCodeblocks,
		},
		CaseMode: vault.ParseCase(settings.CaseMatching),
		Symbols:  symbols,
		Events:   events,
	})

	if settings.DebugHTTP != "" {
		startDebugServer(ctx, settings.DebugHTTP, sess, broker, logger)
	}

	rt := &lsp.Runtime{
		Session: sess,
		Query: query.Options{
			HoverLines:            settings.HoverLines,
			UnresolvedDiagnostics: settings.UnresolvedDiagnostics,
			HeadingCompletions:    settings.HeadingCompletions,
			TitleHeadings:         settings.TitleHeadings,
			IncludeMDExtension:    settings.IncludeMDExtensionMdLink,
			LinkFilenamesOnly:     settings.LinkFilenamesOnly,
			ExtraDirectives:       settings.ExtraDirectives,
			ExtraRoles:            settings.ExtraRoles,
		},
		HoverEnabled:     settings.Hover,
		NewFileFolder:    settings.NewFileFolderPath,
		DailyNoteFormat:  settings.Dailynote,
		DailyNotesFolder: settings.DailyNotesFolder,
		ConfigPath:       configPath,
	}
	return rt, sess, settings, nil
}

// Run starts the language server on stdio and blocks until the client
// exits or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{stdin: os.Stdin, stdout: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}

	logger := NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	boot := func(root string) (*lsp.Runtime, error) {
		rt, _, _, err := buildRuntime(gCtx, root, app.settingsPath, logger)
		if err != nil {
			return nil, err
		}
		return rt, nil
	}
	server := lsp.NewServer(boot, logger)

	g.Go(func() error {
		defer cancel()
		return server.Serve(gCtx, app.stdin, app.stdout)
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			logger.Info("received shutdown signal", slog.String("signal", sig.String()))
			return fmt.Errorf("terminated by signal %s", sig)
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// RunMCP indexes the vault whose root lsp.FindRoot discovers from the working
// directory and serves it over the Model Context Protocol on stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	logger := NewLogger()
	slog.SetDefault(logger)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	root := lsp.FindRoot(cwd)
	_, sess, settings, err := buildRuntime(ctx, root, app.settingsPath, logger)
	if err != nil {
		return err
	}
	if err := sess.Initialize(ctx); err != nil {
		return err
	}
	srv := mcpserver.New(sess, settings.Dailynote, settings.DailyNotesFolder)
	return srv.ServeStdio()
}

// DailyNotePath resolves today's daily-note absolute path for the vault
// containing dir.
func DailyNotePath(dir, settingsPath string, now time.Time) (string, error) {
	root := lsp.FindRoot(dir)
	settings, _, err := LoadSettings(root, settingsPath)
	if err != nil {
		return "", err
	}
	rel := dailynote.RelPath(settings.Dailynote, settings.DailyNotesFolder, now)
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// ConfigPath resolves the active configuration file for the vault
// containing dir; empty when none exists.
func ConfigPath(dir string) (string, error) {
	root := lsp.FindRoot(dir)
	return pkgconfig.FirstExisting(SettingsPaths(root)...), nil
}

// sseBroker adapts the SSE broker for session event publication.
type sseBroker struct {
	b *sse.Broker
}

func newSSEBroker() *sseBroker {
	return &sseBroker{b: sse.NewBroker(time.Second)}
}

func (s *sseBroker) publish(kind, rel string) { s.b.PublishVaultEvent(kind, rel) }
func (s *sseBroker) handler() http.Handler    { return s.b }
func (s *sseBroker) stop()                    { s.b.Stop() }

// startDebugServer serves the read-only debug API until ctx is cancelled.
func startDebugServer(ctx context.Context, addr string, sess *session.Session, broker *sseBroker, logger *slog.Logger) {
	router := api.NewRouter(sess, broker.handler())
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("debug server starting", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("debug server error", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		broker.stop()
	}()
}
