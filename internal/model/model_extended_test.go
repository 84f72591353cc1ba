package model

import (
	"testing"

	"eiffel-lsp/internal/errors"
)

func attr(name, typ string) Feature {
	t := ClassType(typ, ClassName(typ))
	return Feature{Name: FeatureName(name), ReturnType: &t}
}

func lookupOf(classes ...*Class) ClassLookup {
	m := make(map[ClassName]*Class, len(classes))
	for _, c := range classes {
		m[c.Name] = c
	}
	return func(n ClassName) (*Class, bool) {
		c, ok := m[n]
		return c, ok
	}
}

func TestExpand_Terminal(t *testing.T) {
	e := NewExpander(lookupOf())
	m, err := e.Expand("INTEGER")
	if err != nil || !m.Terminal {
		t.Errorf("Expand(INTEGER) = %+v, %v; want terminal", m, err)
	}
}

func TestExpand_Nested(t *testing.T) {
	account := &Class{
		Name:       "ACCOUNT",
		ModelNames: []FeatureName{"balance", "owner"},
		Features:   []Feature{attr("balance", "INTEGER"), attr("owner", "PERSON")},
	}
	person := &Class{
		Name:       "PERSON",
		ModelNames: []FeatureName{"name"},
		Features:   []Feature{attr("name", "STRING")},
	}

	m, err := NewExpander(lookupOf(account, person)).Expand("ACCOUNT")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if m.Terminal || len(m.Members) != 2 {
		t.Fatalf("Expand(ACCOUNT) = %+v", m)
	}
	if !m.Members[0].Model.Terminal {
		t.Error("balance should be terminal")
	}
	owner := m.Members[1].Model
	if len(owner.Members) != 1 || owner.Members[0].Name != "name" || !owner.Members[0].Model.Terminal {
		t.Errorf("owner expansion = %+v", owner)
	}

	want := "balance: INTEGER\nowner: PERSON\n  name: STRING"
	if got := m.Describe(); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestExpand_CycleTerminates(t *testing.T) {
	node := &Class{
		Name:       "NODE",
		ModelNames: []FeatureName{"next", "value"},
		Features:   []Feature{attr("next", "LINK"), attr("value", "INTEGER")},
	}
	link := &Class{
		Name:       "LINK",
		ModelNames: []FeatureName{"target"},
		Features:   []Feature{attr("target", "NODE")},
	}

	e := NewExpander(lookupOf(node, link))
	m, err := e.Expand("NODE")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	back := m.Members[0].Model.Members[0]
	if back.Name != "target" || !back.Model.Terminal {
		t.Errorf("cycle-closing reference = %+v, want terminal", back)
	}

	// LINK was expanded under the cycle guard and must not be memoised.
	if _, ok := e.memo["LINK"]; ok {
		t.Error("partial expansion of LINK was memoised")
	}
	if _, ok := e.memo["NODE"]; !ok {
		t.Error("complete expansion of NODE should be memoised")
	}
}

func TestExpand_SelfReference(t *testing.T) {
	c := &Class{Name: "TREE", ModelNames: []FeatureName{"left"}, Features: []Feature{attr("left", "TREE")}}

	m, err := NewExpander(lookupOf(c)).Expand("TREE")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(m.Members) != 1 || !m.Members[0].Model.Terminal {
		t.Errorf("Expand(TREE) = %+v", m)
	}
}

func TestExpand_Errors(t *testing.T) {
	anchored := Anchored("like item")
	classes := []*Class{
		{Name: "A", ModelNames: []FeatureName{"b"}, Features: []Feature{attr("b", "MISSING")}},
		{Name: "B", ModelNames: []FeatureName{"x"}},
		{Name: "C", ModelNames: []FeatureName{"x"}, Features: []Feature{{Name: "x", ReturnType: &anchored}}},
	}
	e := NewExpander(lookupOf(classes...))

	for _, name := range []ClassName{"A", "B", "C", "UNKNOWN"} {
		if _, err := e.Expand(name); !errors.Is(err, errors.ResolveError) {
			t.Errorf("Expand(%s) error = %v, want RESOLVE_ERROR", name, err)
		}
	}
}

func TestExpand_InheritedModelFeature(t *testing.T) {
	parent := &Class{Name: "CONTAINER", Features: []Feature{attr("content", "INTEGER")}}
	child := &Class{
		Name:       "BOX",
		ModelNames: []FeatureName{"items"},
		Parents:    []ClassParent{{Name: "CONTAINER", Renames: []Rename{{Old: "content", New: "items"}}}},
	}

	m, err := NewExpander(lookupOf(parent, child)).Expand("BOX")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if len(m.Members) != 1 || m.Members[0].Type != "INTEGER" {
		t.Errorf("Expand(BOX) = %+v", m)
	}
}
