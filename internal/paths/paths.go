// Package paths resolves the per-workspace state directory and the files
// kept in it.
package paths

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirName is created in the workspace root.
	StateDirName = ".eiffel-lsp"
	// SettingsFileName is read by the config loader.
	SettingsFileName = "settings.toml"
	// PromptsFileName holds optional prompt template overrides.
	PromptsFileName = "prompts.toml"
	logsDirName     = "logs"
	serverLogName   = "server.log"
)

// StateDir returns <root>/.eiffel-lsp.
func StateDir(root string) string {
	return filepath.Join(root, StateDirName)
}

// SettingsPath returns the default settings file for root.
func SettingsPath(root string) string {
	return filepath.Join(StateDir(root), SettingsFileName)
}

// PromptsPath returns the default prompt override file for root.
func PromptsPath(root string) string {
	return filepath.Join(StateDir(root), PromptsFileName)
}

// ServerLogPath returns the log file the language server tees into.
func ServerLogPath(root string) string {
	return filepath.Join(StateDir(root), logsDirName, serverLogName)
}

// EnsureLogsDir creates the logs directory and returns it.
func EnsureLogsDir(root string) (string, error) {
	dir := filepath.Join(StateDir(root), logsDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// CanonicalizePath converts an absolute path to a root-relative path with
// forward slashes. Symlinks are resolved when the file exists.
func CanonicalizePath(absolutePath string, root string) (string, error) {
	resolved, err := evalIfExists(absolutePath)
	if err != nil {
		return "", err
	}
	rootResolved, err := evalIfExists(root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

func evalIfExists(p string) (string, error) {
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return "", err
	}
	return resolved, nil
}

// IsWithinRoot reports whether path lies under root.
func IsWithinRoot(path string, root string) bool {
	canonical, err := CanonicalizePath(path, root)
	if err != nil {
		return false
	}
	return canonical != ".." && !strings.HasPrefix(canonical, "../")
}

// FileURI converts an absolute path to a file:// URI.
func FileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}

// FromURI strips the file:// scheme and percent-decoding. Other schemes are
// returned unchanged.
func FromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return uri
	}
	if decoded, err := url.PathUnescape(rest); err == nil {
		rest = decoded
	}
	return filepath.FromSlash(rest)
}
