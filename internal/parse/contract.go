package parse

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/errors"
)

// Contract reads the clauses of a precondition, postcondition or invariant
// node. Clauses without a predicate are dropped; the returned error then
// describes the first one, alongside the clauses that were read.
func (p *Parser) Contract(node *sitter.Node, src []byte) ([]contract.Clause, error) {
	switch node.Type() {
	case kindPrecondition, kindPostcondition, kindInvariant:
	default:
		return nil, errors.Newf(errors.ParseError, "expected a contract block, got %s", describe(node))
	}

	var (
		clauses []contract.Clause
		seen    = map[uint32]bool{}
		missing error
	)
	for _, m := range matches(p.queries.assertion, node, src) {
		clauseNode := m.first(capClause)
		if clauseNode == nil || seen[clauseNode.StartByte()] {
			continue
		}

		var expr *sitter.Node
		for _, e := range m[capExpression] {
			if e.Type() == kindTagMark || isCommentKind(e.Type()) {
				continue
			}
			expr = e
			break
		}
		if expr == nil {
			if missing == nil {
				missing = errors.Newf(errors.ParseError, "clause without predicate at %s", describe(clauseNode))
			}
			continue
		}
		seen[clauseNode.StartByte()] = true

		var tag string
		if t := m.first(capTag); t != nil {
			tag = text(t, src)
		}
		clauses = append(clauses, contract.Clause{
			Tag:       tag,
			Predicate: strings.Join(strings.Fields(text(expr, src)), " "),
		})
	}
	return clauses, missing
}
