package model

import (
	"testing"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/span"
)

func TestNewClassName(t *testing.T) {
	n, err := NewClassName("  linked_list ")
	if err != nil {
		t.Fatalf("NewClassName failed: %v", err)
	}
	if n != "LINKED_LIST" {
		t.Errorf("NewClassName = %q, want LINKED_LIST", n)
	}
	if _, err := NewClassName(""); !errors.Is(err, errors.ParseError) {
		t.Errorf("empty name error = %v, want PARSE_ERROR", err)
	}
}

func TestFeatureNameEqual(t *testing.T) {
	if !FeatureName("Make").Equal("make") {
		t.Error("feature names should compare case-insensitively")
	}
	if FeatureName("make").Equal("make_empty") {
		t.Error("different names compared equal")
	}
}

func TestEiffelTypeClassName(t *testing.T) {
	ct := ClassType("ARRAY [INTEGER]", "ARRAY")
	name, err := ct.ClassName()
	if err != nil || name != "ARRAY" {
		t.Errorf("ClassName() = %q, %v; want ARRAY", name, err)
	}

	tests := []struct {
		typ  EiffelType
		kind TypeKind
	}{
		{TupleType("TUPLE [a: INTEGER]"), TupleTypeKind},
		{Anchored("like Current"), AnchoredKind},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			_, err := tt.typ.ClassName()
			if !errors.Is(err, errors.ResolveError) {
				t.Fatalf("ClassName() error = %v, want RESOLVE_ERROR", err)
			}
			var e *errors.Error
			if !asError(err, &e) || e.Details != tt.kind {
				t.Errorf("error details = %v, want %v", e.Details, tt.kind)
			}
		})
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}

func TestVisibility(t *testing.T) {
	tests := []struct {
		name    string
		clients []ClassName
		kind    VisibilityKind
		str     string
	}{
		{"no clause", nil, VisibleToAll, ""},
		{"any", []ClassName{"ANY"}, VisibleToAll, ""},
		{"none", []ClassName{"NONE"}, VisibleToNone, "{NONE}"},
		{"empty braces", []ClassName{}, VisibleToNone, "{NONE}"},
		{"some", []ClassName{"FOO", "BAR"}, VisibleToSome, "{FOO, BAR}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := VisibilityFromClients(tt.clients)
			if v.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", v.Kind, tt.kind)
			}
			if v.String() != tt.str {
				t.Errorf("String() = %q, want %q", v.String(), tt.str)
			}
		})
	}

	v := VisibilityFromClients([]ClassName{"FOO"})
	if !v.VisibleTo("FOO") || v.VisibleTo("BAR") {
		t.Error("VisibleTo should only admit listed clients")
	}
}

func TestSignature(t *testing.T) {
	ret := ClassType("BOOLEAN", "BOOLEAN")
	f := Feature{Name: "has", ReturnType: &ret, Routine: true}
	f.Parameters.Add("v", ClassType("G", "G"))
	f.Parameters.Add("i", ClassType("INTEGER", "INTEGER"))

	if got := f.Signature(); got != "has (v: G; i: INTEGER): BOOLEAN" {
		t.Errorf("Signature() = %q", got)
	}
	if !f.IsFunction() {
		t.Error("has should be a function")
	}

	attr := Feature{Name: "count", ReturnType: &ret}
	if attr.Signature() != "count: BOOLEAN" || attr.IsRoutine() {
		t.Errorf("attribute signature = %q, routine = %v", attr.Signature(), attr.IsRoutine())
	}
}

func TestClassLookups(t *testing.T) {
	c := &Class{
		Name: "FOO",
		Features: []Feature{
			{Name: "count", Range: span.Range{Start: span.Point{Row: 2}, End: span.Point{Row: 2, Column: 20}}},
			{Name: "put", Routine: true, Range: span.Range{Start: span.Point{Row: 4}, End: span.Point{Row: 9, Column: 6}}},
		},
		Parents: []ClassParent{{Name: "BAR", Redefine: []FeatureName{"put"}}},
	}

	if f, ok := c.Feature("PUT"); !ok || f.Name != "put" {
		t.Errorf("Feature(PUT) = %v, %v", f, ok)
	}
	if f, ok := c.FeatureAt(span.Point{Row: 6, Column: 3}); !ok || f.Name != "put" {
		t.Errorf("FeatureAt(6:3) = %v, %v", f, ok)
	}
	if _, ok := c.FeatureAt(span.Point{Row: 12}); ok {
		t.Error("FeatureAt outside every feature should miss")
	}
	if rs := c.Routines(); len(rs) != 1 || rs[0].Name != "put" {
		t.Errorf("Routines() = %v", rs)
	}
	if !c.IsRedefinition("Put") || c.IsRedefinition("count") {
		t.Error("IsRedefinition mismatch")
	}
}
