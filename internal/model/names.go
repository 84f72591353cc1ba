// Package model defines the typed view of an Eiffel class produced by the
// parse layer: names, types, features, parents and model expansions.
package model

import (
	"strings"

	"eiffel-lsp/internal/errors"
)

// ClassName is an upper-cased class identifier.
type ClassName string

// NewClassName canonicalises s. Empty names are rejected.
func NewClassName(s string) (ClassName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New(errors.ParseError, "empty class name", nil)
	}
	return ClassName(strings.ToUpper(s)), nil
}

// MustClassName is NewClassName for names known to be valid.
func MustClassName(s string) ClassName {
	n, err := NewClassName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func (n ClassName) String() string { return string(n) }

// FeatureName keeps the spelling found in source. Eiffel identifiers are
// case-insensitive, so compare with Equal.
type FeatureName string

// Equal compares names ignoring case.
func (n FeatureName) Equal(o FeatureName) bool {
	return strings.EqualFold(string(n), string(o))
}

// Key is the lower-cased form used for map lookups.
func (n FeatureName) Key() string {
	return strings.ToLower(string(n))
}

func (n FeatureName) String() string { return string(n) }

// Note is one entry of a note clause, e.g. `model: sequence, count`.
type Note struct {
	Tag    string   `json:"tag"`
	Values []string `json:"values"`
}

// Notes is an ordered list of note entries.
type Notes []Note

// Lookup returns the values of the first entry with tag, case-insensitively.
func (ns Notes) Lookup(tag string) ([]string, bool) {
	for _, n := range ns {
		if strings.EqualFold(n.Tag, tag) {
			return n.Values, true
		}
	}
	return nil, false
}

// VisibilityKind discriminates Visibility.
type VisibilityKind int

const (
	// VisibleToNone is `feature {NONE}`.
	VisibleToNone VisibilityKind = iota
	// VisibleToSome lists explicit client classes.
	VisibleToSome
	// VisibleToAll is an unrestricted feature clause or `{ANY}`.
	VisibleToAll
)

// Visibility is the client set of a feature clause.
type Visibility struct {
	Kind    VisibilityKind `json:"kind"`
	Clients []ClassName    `json:"clients,omitempty"`
}

// VisibilityFromClients derives visibility from a `{A, B}` client list.
// A nil list means no client clause at all.
func VisibilityFromClients(clients []ClassName) Visibility {
	if clients == nil {
		return Visibility{Kind: VisibleToAll}
	}
	var some []ClassName
	for _, c := range clients {
		switch c {
		case "ANY":
			return Visibility{Kind: VisibleToAll}
		case "NONE":
		default:
			some = append(some, c)
		}
	}
	if len(some) == 0 {
		return Visibility{Kind: VisibleToNone}
	}
	return Visibility{Kind: VisibleToSome, Clients: some}
}

// VisibleTo reports whether a client class may call the feature.
func (v Visibility) VisibleTo(client ClassName) bool {
	switch v.Kind {
	case VisibleToAll:
		return true
	case VisibleToSome:
		for _, c := range v.Clients {
			if c == client {
				return true
			}
		}
	}
	return false
}

func (v Visibility) String() string {
	switch v.Kind {
	case VisibleToNone:
		return "{NONE}"
	case VisibleToSome:
		names := make([]string, len(v.Clients))
		for i, c := range v.Clients {
			names[i] = string(c)
		}
		return "{" + strings.Join(names, ", ") + "}"
	default:
		return ""
	}
}
