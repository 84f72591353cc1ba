package parse

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Call is an unqualified call such as `f (a, b)`.
type Call struct {
	ID   string
	Args []string
}

// TopLevelCalls lists the unqualified calls directly in node, in source
// order. Calls nested inside another call's arguments are not reported.
func (p *Parser) TopLevelCalls(node *sitter.Node, src []byte) []Call {
	var (
		out   []Call
		index = map[uint32]int{}
		args  = map[uint32]bool{}
		ends  []uint32
	)
	for _, m := range matches(p.queries.call, node, src) {
		call, id := m.first(capCall), m.first(capID)
		if call == nil || id == nil {
			continue
		}
		i, ok := index[call.StartByte()]
		if !ok {
			if nested(call, ends) {
				continue
			}
			i = len(out)
			index[call.StartByte()] = i
			ends = append(ends, call.EndByte())
			out = append(out, Call{ID: text(id, src)})
		}
		// One match per argument; the same argument node may recur.
		for _, a := range m[capArgument] {
			if args[a.StartByte()] || a.StartByte() == a.EndByte() {
				continue
			}
			args[a.StartByte()] = true
			out[i].Args = append(out[i].Args, text(a, src))
		}
	}
	return out
}

// CallIDs returns the set of identifiers called at the top level of node.
func (p *Parser) CallIDs(node *sitter.Node, src []byte) map[string]struct{} {
	ids := map[string]struct{}{}
	for _, c := range p.TopLevelCalls(node, src) {
		ids[c.ID] = struct{}{}
	}
	return ids
}

// nested reports whether call starts inside an earlier call. Matches arrive
// in document order, so the earlier call's end is enough.
func nested(call *sitter.Node, ends []uint32) bool {
	for _, end := range ends {
		if call.StartByte() < end {
			return true
		}
	}
	return false
}
