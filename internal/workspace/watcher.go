package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads classes when their files change on disk. Edits made by
// the repair loop arrive here too; Reload skips them when the content
// matches what is already indexed.
type Watcher struct {
	ws       *Workspace
	fsw      *fsnotify.Watcher
	debounce *batchDebouncer

	ctx      context.Context
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for ws that waits for delay of quiet before
// reloading.
func NewWatcher(ws *Workspace, delay time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{ws: ws, fsw: fsw, done: make(chan struct{})}
	w.debounce = newBatchDebouncer(delay, w.apply)
	return w, nil
}

// Start watches every cluster directory of the loaded system and returns
// immediately. Events are processed until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.ctx = ctx
	sys := w.ws.System()
	if sys != nil {
		for _, c := range sys.Clusters {
			if err := w.addDirs(c.Location, c.Recursive); err != nil {
				w.ws.logger.Warn("Cannot watch cluster", "cluster", c.Name, "error", err)
			}
		}
	}
	go w.loop(ctx)
	return nil
}

// Add watches one more directory, non-recursively.
func (w *Watcher) Add(dir string) error {
	return w.fsw.Add(dir)
}

func (w *Watcher) addDirs(root string, recursive bool) error {
	if !recursive {
		return w.fsw.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if _, skip := skipDirs[d.Name()]; skip && path != root {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Stop ends event processing and drops pending reloads.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.debounce.Cancel()
		_ = w.fsw.Close()
	})
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".e") {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.debounce.Add(filepath.Clean(event.Name))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.ws.logger.Warn("File watcher error", "error", err)
		}
	}
}

// apply reloads changed files and drops deleted ones.
func (w *Watcher) apply(paths []string) {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			w.ws.Remove(path)
			continue
		}
		if _, err := w.ws.Reload(ctx, path); err != nil {
			w.ws.logger.Warn("Reload after change failed", "path", path, "error", err)
		}
	}
}
