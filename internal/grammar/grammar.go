// Package grammar locates and loads the tree-sitter Eiffel grammar. The
// grammar ships as a compiled shared library (tree-sitter-eiffel) outside
// this module and is opened at runtime.
package grammar

import (
	"os"
	"path/filepath"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/errors"
)

const (
	// EnvLibrary overrides the grammar location.
	EnvLibrary = "EIFFEL_TREE_SITTER_LIB"
	// Symbol is the exported constructor in the grammar library.
	Symbol = "tree_sitter_eiffel"
)

// searchPaths are tried, in order, when neither config nor environment
// name a library.
var searchPaths = []string{
	"/usr/local/lib/libtree-sitter-eiffel.so",
	"/usr/lib/libtree-sitter-eiffel.so",
	"/usr/local/lib/libtree-sitter-eiffel.dylib",
	"/opt/homebrew/lib/libtree-sitter-eiffel.dylib",
}

var (
	mu     sync.Mutex
	loaded = map[string]*sitter.Language{}
)

// Resolve picks the grammar library path: configured, then $EIFFEL_TREE_SITTER_LIB,
// then the first existing well-known location. Empty means none was found.
func Resolve(configured string) string {
	if configured != "" {
		return configured
	}
	if env := os.Getenv(EnvLibrary); env != "" {
		return env
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Load opens the grammar at path, caching one Language per path for the
// life of the process.
func Load(path string) (*sitter.Language, error) {
	if path == "" {
		return nil, errors.New(errors.ConfigError, "tree-sitter Eiffel grammar not found; set "+EnvLibrary+" or parser.grammarLibrary", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.New(errors.ConfigError, "invalid grammar path", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if lang, ok := loaded[abs]; ok {
		return lang, nil
	}
	lang, err := open(abs, Symbol)
	if err != nil {
		return nil, errors.New(errors.ConfigError, "cannot load grammar "+abs, err)
	}
	loaded[abs] = lang
	return lang, nil
}
