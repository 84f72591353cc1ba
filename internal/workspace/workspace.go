// Package workspace indexes the classes of an Eiffel system and keeps the
// index current as files are rewritten.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"eiffel-lsp/internal/ecf"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/metrics"
	"eiffel-lsp/internal/model"
)

// SourceParser turns the bytes of one .e file into a class.
type SourceParser interface {
	ParseClass(ctx context.Context, path string, src []byte) (*model.Class, error)
}

// Options tunes loading.
type Options struct {
	// Parallelism bounds concurrent parses; 0 means 4.
	Parallelism int
	// IgnoreFiles are gitignore-style files read at each cluster root.
	IgnoreFiles []string
}

// DefaultOptions returns the loading defaults.
func DefaultOptions() Options {
	return Options{Parallelism: 4, IgnoreFiles: []string{".gitignore", ".eiffelignore"}}
}

// Workspace is the class index. Classes handed out are shared and must not
// be modified; Reload swaps in a new value instead.
type Workspace struct {
	parser SourceParser
	logger *slog.Logger
	opts   Options

	mu      sync.RWMutex
	system  *ecf.System
	classes map[string]*model.Class
	paths   map[model.ClassName]string
	digests map[string]digest

	// memoMu guards expander; it is always taken after mu.
	memoMu   sync.Mutex
	expander *model.Expander

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New creates an empty workspace.
func New(parser SourceParser, logger *slog.Logger, opts Options) *Workspace {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultOptions().Parallelism
	}
	w := &Workspace{
		parser:  parser,
		logger:  logger,
		opts:    opts,
		classes: map[string]*model.Class{},
		paths:   map[model.ClassName]string{},
		digests: map[string]digest{},
		locks:   map[string]*sync.Mutex{},
	}
	w.expander = model.NewExpander(w.lookupLocked)
	return w
}

type parsed struct {
	path   string
	class  *model.Class
	digest digest
}

// LoadSystem indexes every class of sys. Files that fail to read or parse
// are logged and skipped; only cancellation fails the load.
func (w *Workspace) LoadSystem(ctx context.Context, sys *ecf.System) error {
	files, err := w.files(sys)
	if err != nil {
		return err
	}
	w.logger.Info("Loading system", "system", sys.Name, "clusters", len(sys.Clusters), "files", len(files))

	if err := w.LoadFiles(ctx, files); err != nil {
		return err
	}
	w.mu.Lock()
	w.system = sys
	w.mu.Unlock()
	return nil
}

// LoadFiles parses paths with bounded parallelism and adds them to the index.
func (w *Workspace) LoadFiles(ctx context.Context, paths []string) error {
	results := make([]*parsed, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Parallelism)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p, err := w.parseFile(gctx, path)
			if err != nil {
				if errors.Is(err, errors.Cancelled) {
					return err
				}
				w.logger.Warn("Skipping class", "path", path, "error", err)
				return nil
			}
			results[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.New(errors.Cancelled, "workspace load cancelled", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	loaded := 0
	for _, p := range results {
		if p == nil {
			continue
		}
		w.installLocked(p)
		loaded++
	}
	w.resetMemo()
	w.logger.Info("Workspace loaded", "classes", loaded, "skipped", len(paths)-loaded)
	return nil
}

func (w *Workspace) parseFile(ctx context.Context, path string) (*parsed, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ParseError, "cannot read "+path, err)
	}
	cls, err := w.parser.ParseClass(ctx, path, src)
	if err != nil {
		if !errors.Is(err, errors.Cancelled) {
			metrics.ClassesParsed.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	metrics.ClassesParsed.WithLabelValues("ok").Inc()
	return &parsed{path: path, class: cls, digest: digestOf(src)}, nil
}

// installLocked replaces the entry for p.path, keeping classes and paths
// consistent when a file's class was renamed.
func (w *Workspace) installLocked(p *parsed) {
	if old, ok := w.classes[p.path]; ok && old.Name != p.class.Name {
		delete(w.paths, old.Name)
	}
	if other, ok := w.paths[p.class.Name]; ok && other != p.path {
		w.logger.Warn("Duplicate class name", "class", p.class.Name, "kept", p.path, "dropped", other)
		delete(w.classes, other)
		delete(w.digests, other)
	}
	w.classes[p.path] = p.class
	w.paths[p.class.Name] = p.path
	w.digests[p.path] = p.digest
}

// System returns the loaded descriptor, or nil before LoadSystem.
func (w *Workspace) System() *ecf.System {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.system
}

// Class returns the class parsed from path.
func (w *Workspace) Class(path string) (*model.Class, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	cls, ok := w.classes[path]
	return cls, ok
}

// Path returns the file declaring name.
func (w *Workspace) Path(name model.ClassName) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.paths[name]
	return p, ok
}

// ClassByName returns the class called name.
func (w *Workspace) ClassByName(name model.ClassName) (*model.Class, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lookupLocked(name)
}

func (w *Workspace) lookupLocked(name model.ClassName) (*model.Class, bool) {
	p, ok := w.paths[name]
	if !ok {
		return nil, false
	}
	cls, ok := w.classes[p]
	return cls, ok
}

// SystemClasses returns every indexed class sorted by name.
func (w *Workspace) SystemClasses() []*model.Class {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*model.Class, 0, len(w.classes))
	for _, cls := range w.classes {
		out = append(out, cls)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reload re-reads and re-parses path and swaps its entry in. A file whose
// content is unchanged is not parsed again. On a parse failure the previous
// entry stays and the error is returned.
func (w *Workspace) Reload(ctx context.Context, path string) (*model.Class, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ParseError, "cannot read "+path, err)
	}
	d := digestOf(src)

	w.mu.RLock()
	cur, ok := w.classes[path]
	same := ok && w.digests[path] == d
	w.mu.RUnlock()
	if same {
		return cur, nil
	}

	cls, err := w.parser.ParseClass(ctx, path, src)
	if err != nil {
		metrics.ClassesParsed.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ClassesParsed.WithLabelValues("ok").Inc()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.installLocked(&parsed{path: path, class: cls, digest: d})
	w.resetMemo()
	w.logger.Debug("Reloaded class", "class", cls.Name, "path", path)
	return cls, nil
}

// Remove drops the class parsed from path, if any.
func (w *Workspace) Remove(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cls, ok := w.classes[path]
	if !ok {
		return
	}
	delete(w.classes, path)
	delete(w.digests, path)
	if w.paths[cls.Name] == path {
		delete(w.paths, cls.Name)
	}
	w.resetMemo()
}

// ModelExtended expands the model of class name, memoised until the next
// change to the index.
func (w *Workspace) ModelExtended(name model.ClassName) (model.ModelExtended, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	w.memoMu.Lock()
	defer w.memoMu.Unlock()
	return w.expander.Expand(name)
}

// resetMemo must be called with mu held for writing.
func (w *Workspace) resetMemo() {
	w.memoMu.Lock()
	w.expander.Reset()
	w.memoMu.Unlock()
}

// LockFile serialises side-effecting work on one file. The returned func
// releases the lock.
func (w *Workspace) LockFile(path string) (unlock func()) {
	w.locksMu.Lock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	w.locksMu.Unlock()

	l.Lock()
	return l.Unlock
}
