package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/span"
)

// Feature extracts the first feature named by a feature_declaration.
func (p *Parser) Feature(decl *sitter.Node, src []byte) (model.Feature, error) {
	fs, err := p.Features(decl, src)
	if err != nil {
		return model.Feature{}, err
	}
	return fs[0], nil
}

// Features extracts one feature per name of a declaration such as
// `a, b: INTEGER`. Names share everything but the name. Visibility is
// left for the enclosing feature clause to fill in.
func (p *Parser) Features(decl *sitter.Node, src []byte) ([]model.Feature, error) {
	if decl.Type() != kindFeatureDecl {
		return nil, errors.Newf(errors.ParseError, "expected %s, got %s", kindFeatureDecl, describe(decl))
	}

	var names []model.FeatureName
	for _, m := range matches(p.queries.featureName, decl, src) {
		n := m.first(capName)
		if n == nil || !sameNode(n.Parent().Parent(), decl) {
			continue
		}
		names = append(names, model.FeatureName(featureIdentifier(n, src)))
	}
	if len(names) == 0 {
		return nil, errors.Newf(errors.ParseError, "missing @%s capture in %s", capName, describe(decl))
	}

	f := model.Feature{Range: nodeRange(decl)}

	if args := namedChildOf(decl, kindFormalArguments); args != nil {
		params, err := p.parameters(args, src)
		if err != nil {
			return nil, err
		}
		f.Parameters = params
	}
	if tm := namedChildOf(decl, kindTypeMark); tm != nil {
		if tn := typeChild(tm); tn != nil {
			t, err := p.EiffelType(tn, src)
			if err != nil {
				return nil, err
			}
			f.ReturnType = &t
		}
	}

	routine := namedChildOf(decl, kindAttrOrRoutine)
	if routine == nil {
		f.Precondition.Range = span.Collapsed(endPoint(decl), decl.EndByte())
		f.Postcondition.Range = f.Precondition.Range
	} else {
		if err := p.routine(&f, routine, src); err != nil {
			return nil, err
		}
	}

	out := make([]model.Feature, len(names))
	for i, name := range names {
		out[i] = f
		out[i].Name = name
	}
	return out, nil
}

// routine fills contracts, body and notes from an attribute_or_routine node.
// Absent contract blocks get a collapsed range at their insertion point:
// before locals or the body for the precondition, before rescue or the
// closing `end` for the postcondition.
func (p *Parser) routine(f *model.Feature, node *sitter.Node, src []byte) error {
	var (
		preAnchor  *sitter.Node
		postAnchor *sitter.Node
		hasPre     bool
		hasPost    bool
	)
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case kindNotes:
			f.Notes = append(f.Notes, p.notes(child, src)...)
		case kindPrecondition:
			clauses, err := p.contractClauses(child, src)
			if err != nil {
				return err
			}
			f.Precondition = contract.Precondition{Clauses: clauses, Range: nodeRange(child)}
			hasPre = true
		case kindLocals:
			if preAnchor == nil {
				preAnchor = child
			}
		case kindFeatureBody:
			if preAnchor == nil {
				preAnchor = child
			}
			f.Body = text(child, src)
			f.BodyRange = nodeRange(child)
			switch bodyKind(child) {
			case kindDeferred:
				f.Deferred = true
			case kindAttribute:
			default:
				f.Routine = true
			}
		case kindPostcondition:
			clauses, err := p.contractClauses(child, src)
			if err != nil {
				return err
			}
			f.Postcondition = contract.Postcondition{Clauses: clauses, Range: nodeRange(child)}
			hasPost = true
		case kindRescue:
			if postAnchor == nil {
				postAnchor = child
			}
		}
	}

	for _, c := range p.TopLevelCalls(node, src) {
		f.Calls = append(f.Calls, model.FeatureName(c.ID))
	}

	if !hasPre {
		if preAnchor != nil {
			f.Precondition.Range = collapsedAt(preAnchor)
		} else {
			f.Precondition.Range = collapsedAt(node)
		}
	}
	if !hasPost {
		if postAnchor == nil {
			postAnchor = closingEnd(node)
		}
		f.Postcondition.Range = collapsedAt(postAnchor)
	}
	return nil
}

// contractClauses reads clauses, skipping (with a log line) those without
// a predicate. Only a wrong node kind is fatal here.
func (p *Parser) contractClauses(node *sitter.Node, src []byte) ([]contract.Clause, error) {
	clauses, err := p.Contract(node, src)
	if err != nil && !errors.Is(err, errors.ParseError) {
		return nil, err
	}
	if err != nil {
		p.logger.Warn("Skipping clause without predicate", "node", describe(node), "error", err)
	}
	return clauses, nil
}

// parameters reads formal arguments; `a, b: T` yields two entries.
func (p *Parser) parameters(args *sitter.Node, src []byte) (model.Parameters, error) {
	var params model.Parameters
	for _, m := range matches(p.queries.parameters, args, src) {
		nameNode, typeNode := m.first(capParameterName), m.first(capParameterType)
		if nameNode == nil || typeNode == nil {
			return params, errors.Newf(errors.ParseError, "argument without @%s/@%s in %s", capParameterName, capParameterType, describe(args))
		}
		t, err := p.EiffelType(typeNode, src)
		if err != nil {
			return params, err
		}
		params.Add(model.FeatureName(text(nameNode, src)), t)
	}
	return params, nil
}

// featureIdentifier drops an alias clause: `plus alias "+"` is `plus`.
func featureIdentifier(n *sitter.Node, src []byte) string {
	if id := namedChildOf(n, kindIdentifier); id != nil {
		return text(id, src)
	}
	fields := strings.Fields(text(n, src))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func typeChild(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); isTypeKind(c.Type()) {
			return c
		}
	}
	return nil
}

// bodyKind is the kind of the first named child of feature_body, which
// distinguishes deferred, attribute and effective routines.
func bodyKind(body *sitter.Node) string {
	if body.NamedChildCount() == 0 {
		return strings.TrimSpace(body.Type())
	}
	return body.NamedChild(0).Type()
}

// closingEnd returns the trailing `end` keyword of a routine.
func closingEnd(n *sitter.Node) *sitter.Node {
	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		c := n.Child(i)
		if !c.IsNamed() && c.Type() == "end" {
			return c
		}
	}
	return n
}

func sameNode(a, b *sitter.Node) bool {
	return a != nil && b != nil && a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}
