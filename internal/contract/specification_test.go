package contract

import (
	"reflect"
	"testing"
)

func TestFromMarkdown(t *testing.T) {
	got := FromMarkdown("# Pre\nx > 0\n# Post\nResult = x + 1\n", nil)

	want := RoutineSpecification{
		Precondition:  []Clause{{Predicate: "x > 0"}},
		Postcondition: []Clause{{Predicate: "Result = x + 1"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FromMarkdown() = %+v, want %+v", got, want)
	}
}

func TestFromMarkdown_Permissive(t *testing.T) {
	md := "Here is the contract:\n" +
		"## Preconditions\n" +
		"- `a_index_valid: 1 <= i and i <= count`\n" +
		"* not_empty:\n" +
		"\n" +
		"# Postconditions\n" +
		"1. Result = old count + 1\n" +
		"x := 3\n" +
		"# Notes\n" +
		"ignored\n"

	got := FromMarkdown(md, nil)

	wantPre := []Clause{{Tag: "a_index_valid", Predicate: "1 <= i and i <= count"}}
	wantPost := []Clause{{Predicate: "Result = old count + 1"}, {Predicate: "x := 3"}}
	if !reflect.DeepEqual(got.Precondition, wantPre) {
		t.Errorf("Precondition = %+v, want %+v", got.Precondition, wantPre)
	}
	if !reflect.DeepEqual(got.Postcondition, wantPost) {
		t.Errorf("Postcondition = %+v, want %+v", got.Postcondition, wantPost)
	}
}

func TestMarkdownRoundTrip(t *testing.T) {
	specs := []RoutineSpecification{
		{
			Precondition:  []Clause{{Predicate: "x > 0"}, {Predicate: "a /= Void"}},
			Postcondition: []Clause{{Predicate: "Result = x * 2"}},
		},
		{
			Precondition:  nil,
			Postcondition: []Clause{{Predicate: "count = old count + 1"}, {Predicate: "has (v)"}},
		},
		{
			Precondition:  []Clause{{Predicate: "across 1 |..| n as i all i > 0 end"}},
			Postcondition: nil,
		},
		// Predicates that look like list markers, headers or code spans.
		{
			Precondition:  []Clause{{Predicate: "- x < 0"}, {Predicate: "1) = count"}, {Predicate: "#x = 1"}},
			Postcondition: []Clause{{Predicate: "* y"}, {Predicate: "`s` /= Void"}, {Predicate: "`"}},
		},
		{
			Precondition:  []Clause{{Tag: "positive", Predicate: "- x < 0"}, {Predicate: "a: b"}},
			Postcondition: []Clause{{Tag: "sized", Predicate: "#items = n"}, {Predicate: ": x"}},
		},
	}

	for _, s := range specs {
		got := FromMarkdown(s.Markdown(), nil)
		if len(got.Precondition) != len(s.Precondition) || len(got.Postcondition) != len(s.Postcondition) {
			t.Fatalf("round trip of %+v gave %+v", s, got)
		}
		for i := range s.Precondition {
			if got.Precondition[i] != s.Precondition[i] {
				t.Errorf("pre[%d] = %+v, want %+v", i, got.Precondition[i], s.Precondition[i])
			}
		}
		for i := range s.Postcondition {
			if got.Postcondition[i] != s.Postcondition[i] {
				t.Errorf("post[%d] = %+v, want %+v", i, got.Postcondition[i], s.Postcondition[i])
			}
		}
	}
}

func TestParseJSON(t *testing.T) {
	s, err := ParseJSON([]byte(`{"precondition":[{"tag":"pos","predicate":"x > 0"}],"postcondition":[{"predicate":"Result >= x"}]}`))
	if err != nil {
		t.Fatalf("ParseJSON failed: %v", err)
	}
	if s.Precondition[0].Tag != "pos" || s.Postcondition[0].Predicate != "Result >= x" {
		t.Errorf("ParseJSON() = %+v", s)
	}

	if _, err := ParseJSON([]byte(`{"precondition":[{"predicate":"  "}],"postcondition":[]}`)); err == nil {
		t.Error("empty predicate should be rejected")
	}
	if _, err := ParseJSON([]byte(`{"precondition":[],"postcondition":[],"extra":1}`)); err == nil {
		t.Error("unknown fields should be rejected")
	}
}

func TestWithout(t *testing.T) {
	s := RoutineSpecification{
		Precondition:  []Clause{{Predicate: "x > 0"}, {Predicate: "y > 0"}, {Predicate: "y > 0"}},
		Postcondition: []Clause{{Predicate: "Result = x"}},
	}
	existingPre := Precondition{Clauses: []Clause{{Tag: "x_pos", Predicate: "x > 0"}}}

	got := s.Without(existingPre, Postcondition{})
	if !reflect.DeepEqual(got.Precondition, []Clause{{Predicate: "y > 0"}}) {
		t.Errorf("Precondition = %+v", got.Precondition)
	}
	if len(got.Postcondition) != 1 {
		t.Errorf("Postcondition = %+v", got.Postcondition)
	}
}
