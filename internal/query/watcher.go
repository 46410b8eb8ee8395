package query

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for a burst of events to
// settle before firing.
const DefaultDebounce = 100 * time.Millisecond

// DefaultTreeRefresh is the file tree expiry used when the watcher fails.
const DefaultTreeRefresh = 30 * time.Second

// Watcher reports changes to the data directory. A burst of create,
// remove, rename or data-file write events collapses into one call of
// OnChange.
type Watcher struct {
	Root     string
	OnChange func()
	Debounce time.Duration
	Logger   *slog.Logger
}

// NewWatcher returns a watcher for root calling onChange after each
// settled burst.
func NewWatcher(root string, onChange func(), log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{Root: root, OnChange: onChange, Debounce: DefaultDebounce, Logger: log}
}

// Run watches until ctx is done. Directories created while running are
// added to the watch set.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchDirRecursive(watcher, w.Root); err != nil {
		return fmt.Errorf("watching %s: %w", w.Root, err)
	}

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := watchDirRecursive(watcher, event.Name); err != nil {
						w.Logger.Warn("watching new directory", "path", event.Name, "error", err)
					}
				}
			}

			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				w.Logger.Debug("data directory changed", "path", event.Name, "op", event.Op.String())
				if w.OnChange != nil {
					w.OnChange()
				}
			})
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watcher error", "error", err)
		}
	}
}

// WatchTree invalidates tree whenever w sees a change. If the watcher
// fails, for instance when the inotify watch limit is reached, the failure
// is logged and tree falls back to expiring every refresh instead. It
// returns when ctx is done and never reports an error, so a watcher
// problem cannot stop the caller.
func WatchTree(ctx context.Context, w *Watcher, tree *TreeCache, refresh time.Duration) {
	next := w.OnChange
	w.OnChange = func() {
		tree.Invalidate()
		if next != nil {
			next()
		}
	}
	err := w.Run(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	if refresh <= 0 {
		refresh = DefaultTreeRefresh
	}
	log := w.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Warn("file watcher stopped, refreshing file tree periodically",
		"root", w.Root, "refresh", refresh, "error", err)
	tree.Invalidate()
	tree.SetTTL(refresh)
}

func relevant(event fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	return event.Has(fsnotify.Write) && IsDataFile(event.Name)
}

// watchDirRecursive adds dir and every non-hidden subdirectory.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
