package model

import (
	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/span"
)

// Class is the parsed content of one .e file.
type Class struct {
	Name       ClassName          `json:"name"`
	Path       string             `json:"path"`
	Deferred   bool               `json:"deferred,omitempty"`
	Parents    []ClassParent      `json:"parents,omitempty"`
	Features   []Feature          `json:"features"`
	Invariant  contract.Invariant `json:"invariant"`
	ModelNames []FeatureName      `json:"modelNames,omitempty"`
	Notes      Notes              `json:"notes,omitempty"`
	Range      span.Range         `json:"range"`
}

// Feature finds a feature declared in this class, ignoring case.
func (c *Class) Feature(name FeatureName) (*Feature, bool) {
	for i := range c.Features {
		if c.Features[i].Name.Equal(name) {
			return &c.Features[i], true
		}
	}
	return nil, false
}

// FeatureAt returns the feature whose range contains p. Feature ranges do
// not nest, so the first hit is the only one.
func (c *Class) FeatureAt(p span.Point) (*Feature, bool) {
	for i := range c.Features {
		if c.Features[i].Range.Contains(p) {
			return &c.Features[i], true
		}
	}
	return nil, false
}

// Routines returns the routines in declaration order.
func (c *Class) Routines() []*Feature {
	var out []*Feature
	for i := range c.Features {
		if c.Features[i].IsRoutine() {
			out = append(out, &c.Features[i])
		}
	}
	return out
}

// Parent returns the inherit entry for name.
func (c *Class) Parent(name ClassName) (*ClassParent, bool) {
	for i := range c.Parents {
		if c.Parents[i].Name == name {
			return &c.Parents[i], true
		}
	}
	return nil, false
}

// IsRedefinition reports whether any parent lists the feature in its
// redefine clause.
func (c *Class) IsRedefinition(name FeatureName) bool {
	for _, p := range c.Parents {
		if p.Redefines(name) {
			return true
		}
	}
	return false
}
