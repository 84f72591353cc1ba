// Package parse turns tree-sitter-eiffel syntax trees into model.Class
// values using named-capture queries.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/span"
)

// Parser extracts classes from Eiffel source. It is safe for concurrent
// use: each call gets its own tree-sitter parser and query cursors.
type Parser struct {
	lang    *sitter.Language
	queries *queries
	logger  *slog.Logger
}

// New compiles the extraction queries against lang.
func New(lang *sitter.Language, logger *slog.Logger) (*Parser, error) {
	if lang == nil {
		return nil, errors.New(errors.ConfigError, "no Eiffel grammar loaded", nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q, err := compileQueries(lang)
	if err != nil {
		return nil, errors.New(errors.ConfigError, "grammar does not match the extraction queries", err)
	}
	return &Parser{lang: lang, queries: q, logger: logger}, nil
}

// Close releases the compiled queries.
func (p *Parser) Close() {
	p.queries.close()
}

// ParseClass parses src and extracts its class. Sources with syntax errors
// are rejected so that a broken rewrite is never indexed.
func (p *Parser) ParseClass(ctx context.Context, path string, src []byte) (*model.Class, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(p.lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.New(errors.Cancelled, "parse cancelled", ctx.Err())
		}
		return nil, errors.New(errors.ParseError, "tree-sitter failed on "+path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		at := firstError(root)
		return nil, errors.Newf(errors.ParseError, "%s: syntax error at %d:%d", path, at.Row+1, at.Column+1).
			WithDetails(span.Location{Path: path, Range: span.Range{Start: at, End: at}})
	}
	return p.ClassFromTree(root, src, path)
}

// ClassFromTree extracts the class declared under root. It fails when the
// tree has no class declaration.
func (p *Parser) ClassFromTree(root *sitter.Node, src []byte, path string) (*model.Class, error) {
	var (
		classNode *sitter.Node
		nameNode  *sitter.Node
	)
	for _, m := range matches(p.queries.className, root, src) {
		n := m.first(capName)
		if n == nil || n.Parent() == nil {
			continue
		}
		classNode, nameNode = n.Parent(), n
		break
	}
	if classNode == nil {
		return nil, errors.Newf(errors.ParseError, "%s: no class declaration", path)
	}

	name, err := model.NewClassName(text(nameNode, src))
	if err != nil {
		return nil, err
	}
	cls := &model.Class{
		Name:      name,
		Path:      path,
		Range:     nodeRange(classNode),
		Invariant: contract.Invariant{Range: span.Collapsed(endPoint(classNode), classNode.EndByte())},
	}

	for i := 0; i < int(classNode.NamedChildCount()); i++ {
		child := classNode.NamedChild(i)
		switch child.Type() {
		case kindHeaderMark:
			cls.Deferred = strings.EqualFold(text(child, src), "deferred")
		case kindNotes:
			cls.Notes = append(cls.Notes, p.notes(child, src)...)
		case kindInheritance:
			for _, pn := range namedChildrenOf(child, kindParent) {
				parent, err := p.Inheritance(pn, src)
				if err != nil {
					p.logger.Warn("Skipping unreadable parent", "path", path, "error", err)
					continue
				}
				cls.Parents = append(cls.Parents, parent)
			}
		case kindFeatures:
			for _, clause := range namedChildrenOf(child, kindFeatureClause) {
				cls.Features = append(cls.Features, p.featureClause(clause, src, path)...)
			}
		case kindInvariant:
			clauses, err := p.Contract(child, src)
			if err != nil {
				p.logger.Warn("Dropping unreadable invariant clauses", "path", path, "error", err)
			}
			cls.Invariant = contract.Invariant{Clauses: clauses, Range: nodeRange(child)}
		}
	}

	if values, ok := cls.Notes.Lookup("model"); ok {
		for _, v := range values {
			for _, name := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
				cls.ModelNames = append(cls.ModelNames, model.FeatureName(name))
			}
		}
	}

	// Redefined features use the weakening/strengthening keywords.
	for i := range cls.Features {
		if cls.IsRedefinition(cls.Features[i].Name) {
			cls.Features[i].Precondition.Redefined = true
			cls.Features[i].Postcondition.Redefined = true
		}
	}
	return cls, nil
}

// featureClause extracts every declaration under one `feature {CLIENTS}`.
func (p *Parser) featureClause(clause *sitter.Node, src []byte, path string) []model.Feature {
	var clients []model.ClassName
	if c := namedChildOf(clause, kindClients); c != nil {
		clients = []model.ClassName{}
		for _, n := range namedChildrenOf(c, kindClassName) {
			if name, err := model.NewClassName(text(n, src)); err == nil {
				clients = append(clients, name)
			}
		}
	}
	visibility := model.VisibilityFromClients(clients)

	var out []model.Feature
	for _, decl := range namedChildrenOf(clause, kindFeatureDecl) {
		features, err := p.Features(decl, src)
		if err != nil {
			p.logger.Warn("Skipping unreadable feature", "path", path, "row", decl.StartPoint().Row+1, "error", err)
			continue
		}
		for _, f := range features {
			f.Visibility = visibility
			out = append(out, f)
		}
	}
	return out
}

// notes reads `tag: value, value` entries.
func (p *Parser) notes(node *sitter.Node, src []byte) model.Notes {
	var out model.Notes
	for _, entry := range namedChildrenOf(node, kindNoteEntry) {
		var note model.Note
		for i := 0; i < int(entry.NamedChildCount()); i++ {
			child := entry.NamedChild(i)
			if isCommentKind(child.Type()) {
				continue
			}
			if note.Tag == "" {
				note.Tag = text(child, src)
				continue
			}
			note.Values = append(note.Values, strings.Trim(text(child, src), `"`))
		}
		if note.Tag != "" {
			out = append(out, note)
		}
	}
	return out
}

func text(n *sitter.Node, src []byte) string {
	return string(src[n.StartByte():n.EndByte()])
}

func point(p sitter.Point) span.Point {
	return span.Point{Row: p.Row, Column: p.Column}
}

func endPoint(n *sitter.Node) span.Point {
	return point(n.EndPoint())
}

func nodeRange(n *sitter.Node) span.Range {
	return span.Range{
		Start:     point(n.StartPoint()),
		End:       point(n.EndPoint()),
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
	}
}

// collapsedAt is an empty range at the start of n.
func collapsedAt(n *sitter.Node) span.Range {
	return span.Collapsed(point(n.StartPoint()), n.StartByte())
}

func namedChildOf(n *sitter.Node, kind string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == kind {
			return c
		}
	}
	return nil
}

func namedChildrenOf(n *sitter.Node, kind string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == kind {
			out = append(out, c)
		}
	}
	return out
}

// firstError finds the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) span.Point {
	if n.Type() == "ERROR" || n.IsMissing() {
		return point(n.StartPoint())
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.HasError() || c.IsMissing() {
			return firstError(c)
		}
	}
	return point(n.StartPoint())
}

func describe(n *sitter.Node) string {
	return fmt.Sprintf("%s at %d:%d", n.Type(), n.StartPoint().Row+1, n.StartPoint().Column+1)
}
