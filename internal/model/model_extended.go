package model

import (
	"fmt"
	"math"
	"strings"

	"eiffel-lsp/internal/errors"
)

// primitiveModels are the classes whose model is atomic.
var primitiveModels = map[ClassName]struct{}{
	"INTEGER": {}, "INTEGER_8": {}, "INTEGER_16": {}, "INTEGER_32": {}, "INTEGER_64": {},
	"NATURAL": {}, "NATURAL_8": {}, "NATURAL_16": {}, "NATURAL_32": {}, "NATURAL_64": {},
	"BOOLEAN": {}, "CHARACTER": {}, "CHARACTER_8": {}, "CHARACTER_32": {},
	"REAL": {}, "REAL_32": {}, "REAL_64": {}, "DOUBLE": {},
	"STRING": {}, "STRING_8": {}, "STRING_32": {}, "POINTER": {}, "ANY": {},
	"MML_SEQUENCE": {}, "MML_SET": {}, "MML_MAP": {}, "MML_BAG": {},
	"MML_RELATION": {}, "MML_INTERVAL": {},
}

// IsTerminalForModel reports whether name has an atomic model.
func IsTerminalForModel(name ClassName) bool {
	_, ok := primitiveModels[name]
	return ok
}

// ModelExtended is the transitive expansion of a class's model features.
// A terminal expansion has no members.
type ModelExtended struct {
	Terminal bool          `json:"terminal"`
	Members  []ModelMember `json:"members,omitempty"`
}

// ModelMember is one model feature and the expansion of its type.
type ModelMember struct {
	Name  FeatureName   `json:"name"`
	Type  string        `json:"type"`
	Model ModelExtended `json:"model"`
}

// Terminal is the atomic expansion.
func Terminal() ModelExtended { return ModelExtended{Terminal: true} }

// Composite wraps a list of members.
func Composite(members []ModelMember) ModelExtended {
	return ModelExtended{Members: members}
}

// Describe renders the expansion as indented `name: TYPE` lines.
func (m ModelExtended) Describe() string {
	var sb strings.Builder
	m.describe(&sb, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func (m ModelExtended) describe(sb *strings.Builder, depth int) {
	for _, mem := range m.Members {
		fmt.Fprintf(sb, "%s%s: %s\n", strings.Repeat("  ", depth), mem.Name, mem.Type)
		mem.Model.describe(sb, depth+1)
	}
}

// ClassLookup resolves a class by name.
type ClassLookup func(ClassName) (*Class, bool)

// Expander computes model expansions with a per-name memo. It is not safe
// for concurrent use; the workspace guards it with its own lock.
type Expander struct {
	lookup ClassLookup
	memo   map[ClassName]ModelExtended
}

// NewExpander creates an expander over lookup.
func NewExpander(lookup ClassLookup) *Expander {
	return &Expander{lookup: lookup, memo: make(map[ClassName]ModelExtended)}
}

// Reset drops memoised results.
func (e *Expander) Reset() {
	clear(e.memo)
}

// Expand returns the model expansion of name. A reference back to a class
// already being expanded yields Terminal.
func (e *Expander) Expand(name ClassName) (ModelExtended, error) {
	m, _, err := e.expand(name, make(map[ClassName]int))
	return m, err
}

// noCycle is the open-cycle depth of a subtree whose cycles all closed
// inside it.
const noCycle = math.MaxInt

// expand also returns the shallowest stack depth that a cycle inside the
// result refers back to. Results whose cycles close above them depend on
// the path taken and are not memoised.
func (e *Expander) expand(name ClassName, visiting map[ClassName]int) (ModelExtended, int, error) {
	if IsTerminalForModel(name) {
		return Terminal(), noCycle, nil
	}
	if m, ok := e.memo[name]; ok {
		return m, noCycle, nil
	}
	if depth, ok := visiting[name]; ok {
		return Terminal(), depth, nil
	}
	cls, ok := e.lookup(name)
	if !ok {
		return ModelExtended{}, noCycle, errors.Newf(errors.ResolveError, "class %s is not in the workspace", name)
	}

	depth := len(visiting)
	visiting[name] = depth
	defer delete(visiting, name)

	open := noCycle
	members := make([]ModelMember, 0, len(cls.ModelNames))
	for _, mn := range cls.ModelNames {
		f, ok := e.findFeature(cls, mn, make(map[ClassName]bool))
		if !ok {
			return ModelExtended{}, noCycle, errors.Newf(errors.ResolveError, "model feature %s not found in %s", mn, name)
		}
		if f.ReturnType == nil {
			return ModelExtended{}, noCycle, errors.Newf(errors.ResolveError, "model feature %s.%s has no type", name, mn)
		}
		target, err := f.ReturnType.ClassName()
		if err != nil {
			return ModelExtended{}, noCycle, err
		}
		sub, subOpen, err := e.expand(target, visiting)
		if err != nil {
			return ModelExtended{}, noCycle, err
		}
		open = min(open, subOpen)
		members = append(members, ModelMember{Name: mn, Type: f.ReturnType.Text, Model: sub})
	}

	result := Composite(members)
	if open < depth {
		return result, open, nil
	}
	e.memo[name] = result
	return result, noCycle, nil
}

// findFeature looks in cls and then, following renames, in its ancestors.
func (e *Expander) findFeature(cls *Class, name FeatureName, seen map[ClassName]bool) (*Feature, bool) {
	if f, ok := cls.Feature(name); ok {
		return f, true
	}
	seen[cls.Name] = true
	for _, p := range cls.Parents {
		if seen[p.Name] {
			continue
		}
		parent, ok := e.lookup(p.Name)
		if !ok {
			continue
		}
		if f, ok := e.findFeature(parent, p.OriginalName(name), seen); ok {
			return f, true
		}
	}
	return nil, false
}
