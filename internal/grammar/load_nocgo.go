//go:build !cgo

package grammar

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Available reports whether grammars can be loaded in this build.
func Available() bool { return false }

func open(path, _ string) (*sitter.Language, error) {
	return nil, fmt.Errorf("loading %s requires a cgo build", path)
}
