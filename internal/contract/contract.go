// Package contract models Eiffel assertion blocks: preconditions,
// postconditions and class invariants.
package contract

import (
	"strings"

	"eiffel-lsp/internal/span"
)

// Keyword introduces a contract block.
type Keyword int

const (
	KeywordRequire Keyword = iota
	KeywordRequireThen
	KeywordEnsure
	KeywordEnsureElse
	KeywordInvariant
)

func (k Keyword) String() string {
	switch k {
	case KeywordRequire:
		return "require"
	case KeywordRequireThen:
		return "require then"
	case KeywordEnsure:
		return "ensure"
	case KeywordEnsureElse:
		return "ensure else"
	case KeywordInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Clause is one assertion. Tag is empty when the clause is untagged.
type Clause struct {
	Tag       string `json:"tag,omitempty"`
	Predicate string `json:"predicate"`
}

// Equivalent compares predicates after trimming. Tags do not participate.
func (c Clause) Equivalent(o Clause) bool {
	return c.key() == o.key()
}

func (c Clause) key() string {
	return strings.TrimSpace(c.Predicate)
}

func (c Clause) String() string {
	if c.Tag == "" {
		return c.Predicate
	}
	return c.Tag + ": " + c.Predicate
}

// Kind is the keyword witness distinguishing the three block types.
type Kind interface {
	keyword(redefined bool) Keyword
	indent() int
}

// Pre marks precondition blocks.
type Pre struct{}

// Post marks postcondition blocks.
type Post struct{}

// Inv marks class invariant blocks.
type Inv struct{}

func (Pre) keyword(redefined bool) Keyword {
	if redefined {
		return KeywordRequireThen
	}
	return KeywordRequire
}

func (Post) keyword(redefined bool) Keyword {
	if redefined {
		return KeywordEnsureElse
	}
	return KeywordEnsure
}

func (Inv) keyword(bool) Keyword { return KeywordInvariant }

func (Pre) indent() int  { return 2 }
func (Post) indent() int { return 2 }
func (Inv) indent() int  { return 1 }

// Block is an ordered list of clauses with the source range it occupies.
// Range is collapsed at the insertion point when the block is absent.
type Block[K Kind] struct {
	Clauses   []Clause   `json:"clauses"`
	Range     span.Range `json:"range"`
	Redefined bool       `json:"redefined,omitempty"`
}

type (
	Precondition  = Block[Pre]
	Postcondition = Block[Post]
	Invariant     = Block[Inv]
)

// Keyword returns the keyword this block renders with.
func (b Block[K]) Keyword() Keyword {
	var k K
	return k.keyword(b.Redefined)
}

// IsEmpty reports whether the block has no clauses.
func (b Block[K]) IsEmpty() bool {
	return len(b.Clauses) == 0
}

// RemoveSelfRedundantClauses keeps the first clause of every group of
// equivalent clauses, preserving order.
func (b Block[K]) RemoveSelfRedundantClauses() Block[K] {
	seen := make(map[string]struct{}, len(b.Clauses))
	out := make([]Clause, 0, len(b.Clauses))
	for _, c := range b.Clauses {
		if _, dup := seen[c.key()]; dup {
			continue
		}
		seen[c.key()] = struct{}{}
		out = append(out, c)
	}
	b.Clauses = out
	return b
}

// RemoveRedundantClauses drops self-duplicates and then every clause whose
// predicate already appears in other.
func (b Block[K]) RemoveRedundantClauses(other Block[K]) Block[K] {
	b = b.RemoveSelfRedundantClauses()
	b.Clauses = without(b.Clauses, other.Clauses)
	return b
}

func without(clauses, other []Clause) []Clause {
	drop := make(map[string]struct{}, len(other))
	for _, c := range other {
		drop[c.key()] = struct{}{}
	}
	out := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		if _, ok := drop[c.key()]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// Append returns a block with extra clauses added after the existing ones.
func (b Block[K]) Append(clauses ...Clause) Block[K] {
	b.Clauses = append(append([]Clause(nil), b.Clauses...), clauses...)
	return b
}

// String renders the keyword followed by one clause per line. Clause lines
// are indented by one tab plus one tab per nesting level. An empty block
// renders as the empty string.
func (b Block[K]) String() string {
	if b.IsEmpty() {
		return ""
	}
	var k K
	prefix := "\t" + strings.Repeat("\t", k.indent())

	var sb strings.Builder
	sb.WriteString(b.Keyword().String())
	sb.WriteByte('\n')
	for _, c := range b.Clauses {
		sb.WriteString(prefix)
		sb.WriteString(c.String())
		sb.WriteByte('\n')
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// ClauseLines renders only the clause lines, each preceded by a newline,
// for appending to a block that already exists in the source.
func (b Block[K]) ClauseLines() string {
	var k K
	prefix := "\n\t" + strings.Repeat("\t", k.indent())
	var sb strings.Builder
	for _, c := range b.Clauses {
		sb.WriteString(prefix)
		sb.WriteString(c.String())
	}
	return sb.String()
}
