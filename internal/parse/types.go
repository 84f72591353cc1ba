package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
)

// EiffelType reads a class_type, tuple_type or anchored node. For a class
// type the name is the outermost class: `HASH_TABLE [V, K]` is HASH_TABLE.
func (p *Parser) EiffelType(node *sitter.Node, src []byte) (model.EiffelType, error) {
	raw := strings.Join(strings.Fields(text(node, src)), " ")
	switch node.Type() {
	case kindTupleType:
		return model.TupleType(raw), nil
	case kindAnchored:
		return model.Anchored(raw), nil
	case kindClassType:
	default:
		return model.EiffelType{}, errors.Newf(errors.ParseError, "expected a type, got %s", describe(node))
	}

	for _, m := range matches(p.queries.classType, node, src) {
		outer, name := m.first(capEiffelType), m.first(capClassName)
		if outer == nil || name == nil || !sameNode(outer, node) {
			continue
		}
		cn, err := model.NewClassName(text(name, src))
		if err != nil {
			return model.EiffelType{}, err
		}
		return model.ClassType(raw, cn), nil
	}
	return model.EiffelType{}, errors.Newf(errors.ParseError, "missing @%s capture in %s", capClassName, describe(node))
}

// Inheritance reads one parent entry with its feature adaptation.
func (p *Parser) Inheritance(node *sitter.Node, src []byte) (model.ClassParent, error) {
	var parent model.ClassParent
	if node.Type() != kindParent {
		return parent, errors.Newf(errors.ParseError, "expected %s, got %s", kindParent, describe(node))
	}
	tn := namedChildOf(node, kindClassType)
	if tn == nil {
		return parent, errors.Newf(errors.ParseError, "parent without class type at %s", describe(node))
	}
	t, err := p.EiffelType(tn, src)
	if err != nil {
		return parent, err
	}
	parent.Type = t
	parent.Name = t.Name

	adapt := namedChildOf(node, kindFeatureAdapt)
	if adapt == nil {
		return parent, nil
	}
	for _, m := range matches(p.queries.rename, adapt, src) {
		before, after := m.first(capRenameBefore), m.first(capRenameAfter)
		if before == nil || after == nil {
			continue
		}
		parent.Renames = append(parent.Renames, model.Rename{
			Old: model.FeatureName(featureIdentifier(before, src)),
			New: model.FeatureName(featureIdentifier(after, src)),
		})
	}
	for i := 0; i < int(adapt.NamedChildCount()); i++ {
		child := adapt.NamedChild(i)
		switch child.Type() {
		case kindRedefine:
			parent.Redefine = append(parent.Redefine, identifiers(child, src)...)
		case kindUndefine:
			parent.Undefine = append(parent.Undefine, identifiers(child, src)...)
		case kindSelect:
			parent.Select = append(parent.Select, identifiers(child, src)...)
		}
	}
	return parent, nil
}

// identifiers collects feature names listed under an adaptation keyword.
func identifiers(n *sitter.Node, src []byte) []model.FeatureName {
	var out []model.FeatureName
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case kindIdentifier:
			out = append(out, model.FeatureName(text(c, src)))
		case kindExtendedName:
			out = append(out, model.FeatureName(featureIdentifier(c, src)))
		}
	}
	return out
}
