package parse

import (
	"embed"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

//go:embed queries/*.scm
var querySources embed.FS

// queries holds the compiled patterns. Compiled queries are read-only and
// shared by all parses; cursors are per call.
type queries struct {
	className   *sitter.Query
	featureName *sitter.Query
	parameters  *sitter.Query
	assertion   *sitter.Query
	rename      *sitter.Query
	classType   *sitter.Query
	call        *sitter.Query
}

func compileQueries(lang *sitter.Language) (*queries, error) {
	q := &queries{}
	targets := []struct {
		file string
		dst  **sitter.Query
	}{
		{"class_name.scm", &q.className},
		{"feature_name.scm", &q.featureName},
		{"parameters.scm", &q.parameters},
		{"assertion.scm", &q.assertion},
		{"rename.scm", &q.rename},
		{"class_type.scm", &q.classType},
		{"call.scm", &q.call},
	}
	for _, t := range targets {
		src, err := querySources.ReadFile("queries/" + t.file)
		if err != nil {
			return nil, err
		}
		compiled, err := sitter.NewQuery(src, lang)
		if err != nil {
			q.close()
			return nil, fmt.Errorf("compile %s: %w", t.file, err)
		}
		*t.dst = compiled
	}
	return q, nil
}

func (q *queries) close() {
	for _, c := range []*sitter.Query{q.className, q.featureName, q.parameters, q.assertion, q.rename, q.classType, q.call} {
		if c != nil {
			c.Close()
		}
	}
}

// captures maps capture names to nodes for one match.
type captures map[string][]*sitter.Node

func (c captures) first(name string) *sitter.Node {
	if nodes := c[name]; len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// matches runs q over node and collects every match.
func matches(q *sitter.Query, node *sitter.Node, src []byte) []captures {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, node)

	var out []captures
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}
		m = qc.FilterPredicates(m, src)
		caps := make(captures, len(m.Captures))
		for _, c := range m.Captures {
			name := q.CaptureNameForId(c.Index)
			caps[name] = append(caps[name], c.Node)
		}
		out = append(out, caps)
	}
	return out
}
