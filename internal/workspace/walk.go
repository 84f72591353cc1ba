package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"eiffel-lsp/internal/ecf"
)

// skipDirs are compiler output and tool state directories.
var skipDirs = map[string]struct{}{
	"EIFGENs":      {},
	".eiffel-lsp":  {},
	".git":         {},
	"node_modules": {},
}

// Files lists the .e files of every cluster of sys, deduplicated and
// sorted, honouring cluster excludes and ignore files.
func (w *Workspace) Files(sys *ecf.System) ([]string, error) {
	return w.files(sys)
}

func (w *Workspace) files(sys *ecf.System) ([]string, error) {
	seen := map[string]struct{}{}
	for _, c := range sys.Clusters {
		info, err := os.Stat(c.Location)
		if err != nil || !info.IsDir() {
			w.logger.Warn("Skipping missing cluster", "cluster", c.Name, "location", c.Location)
			continue
		}
		gi := w.loadIgnores(c.Location)
		err = filepath.WalkDir(c.Location, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(c.Location, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if path == c.Location {
					return nil
				}
				if _, skip := skipDirs[d.Name()]; skip || !c.Recursive || c.Excluded(rel) {
					return filepath.SkipDir
				}
				if gi != nil && gi.MatchesPath(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.EqualFold(filepath.Ext(path), ".e") || c.Excluded(rel) {
				return nil
			}
			if gi != nil && gi.MatchesPath(rel) {
				return nil
			}
			seen[filepath.Clean(path)] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// loadIgnores merges the configured ignore files found at root.
func (w *Workspace) loadIgnores(root string) *ignore.GitIgnore {
	var lines []string
	for _, name := range w.opts.IgnoreFiles {
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}
