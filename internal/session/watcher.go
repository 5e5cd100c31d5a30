package session

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the vault root and feeds file change
// events into the session until ctx is cancelled.
//
// New directories created at runtime are automatically added to the watch
// list. Rename events trigger a debounced reconciliation pass that removes
// stale documents and picks up files that moved into watched directories.
func (s *Session) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, s.cfg.Root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", s.cfg.Root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			s.logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			s.reconcile()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						s.logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					scheduleReconcile()
					continue
				}
			}

			if !strings.HasSuffix(absPath, ".md") {
				continue
			}
			rel, relErr := filepath.Rel(s.cfg.Root, absPath)
			if relErr != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				s.ExternalChange(rel)

			case ev.Op&fsnotify.Remove != 0:
				s.ExternalDelete(rel)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the OLD path only; the new path
				// arrives as a separate Create event when it stays inside a
				// watched dir. Remove the old document now and reconcile to
				// catch stragglers.
				s.ExternalDelete(rel)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// reconcile compares disk state with the snapshot: documents without a file
// on disk are removed, changed or new files are re-read.
func (s *Session) reconcile() {
	infos, err := s.cfg.Store.List("")
	if err != nil {
		s.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}
	disk := make(map[string]string, len(infos))
	for _, info := range infos {
		disk[info.Rel] = info.Checksum
	}

	snap := s.Snapshot()
	for _, d := range snap.Docs() {
		if _, ok := disk[d.Rel]; !ok {
			s.ExternalDelete(d.Rel)
		}
	}
	for rel := range disk {
		s.ExternalChange(rel)
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher,
// skipping hidden directories.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
