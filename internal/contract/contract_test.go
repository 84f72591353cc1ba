package contract

import (
	"reflect"
	"testing"
)

func TestRemoveSelfRedundantClauses(t *testing.T) {
	b := Precondition{Clauses: []Clause{
		{Predicate: "x>0"},
		{Tag: "a", Predicate: "x>0"},
		{Predicate: "y<1"},
	}}

	got := b.RemoveSelfRedundantClauses().Clauses
	want := []Clause{{Predicate: "x>0"}, {Predicate: "y<1"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RemoveSelfRedundantClauses() = %v, want %v", got, want)
	}
	if len(b.Clauses) != 3 {
		t.Error("receiver should not be modified")
	}
}

func TestRemoveSelfRedundantClauses_TrimsPredicates(t *testing.T) {
	b := Postcondition{Clauses: []Clause{
		{Predicate: "Result = x"},
		{Predicate: "  Result = x\t"},
		{Predicate: "count = old count"},
		{Predicate: "Result = x "},
	}}

	got := b.RemoveSelfRedundantClauses().Clauses
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(got), got)
	}
	if got[0].Predicate != "Result = x" || got[1].Predicate != "count = old count" {
		t.Errorf("order not preserved: %v", got)
	}
}

func TestRemoveRedundantClauses(t *testing.T) {
	a := Precondition{Clauses: []Clause{
		{Predicate: "a /= Void"},
		{Predicate: "n > 0"},
		{Tag: "dup", Predicate: "a /= Void"},
		{Predicate: "n < 10"},
		{Predicate: "i >= 1"},
	}}
	b := Precondition{Clauses: []Clause{
		{Tag: "n_positive", Predicate: "n > 0"},
		{Predicate: "i >= 1"},
	}}

	got := a.RemoveRedundantClauses(b)
	want := []Clause{{Predicate: "a /= Void"}, {Predicate: "n < 10"}}
	if !reflect.DeepEqual(got.Clauses, want) {
		t.Errorf("RemoveRedundantClauses() = %v, want %v", got.Clauses, want)
	}
	for _, c := range got.Clauses {
		for _, o := range b.Clauses {
			if c.Equivalent(o) {
				t.Errorf("clause %q still present in other", c.Predicate)
			}
		}
	}
}

func TestKeyword(t *testing.T) {
	tests := []struct {
		name string
		got  Keyword
		want string
	}{
		{"require", Precondition{}.Keyword(), "require"},
		{"require then", Precondition{Redefined: true}.Keyword(), "require then"},
		{"ensure", Postcondition{}.Keyword(), "ensure"},
		{"ensure else", Postcondition{Redefined: true}.Keyword(), "ensure else"},
		{"invariant", Invariant{}.Keyword(), "invariant"},
		{"invariant redefined", Invariant{Redefined: true}.Keyword(), "invariant"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.String() != tt.want {
				t.Errorf("Keyword() = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBlockString(t *testing.T) {
	pre := Precondition{Clauses: []Clause{
		{Tag: "positive", Predicate: "x > 0"},
		{Predicate: "y /= Void"},
	}}
	want := "require\n\t\t\tpositive: x > 0\n\t\t\ty /= Void"
	if got := pre.String(); got != want {
		t.Errorf("Precondition.String() = %q, want %q", got, want)
	}

	inv := Invariant{Clauses: []Clause{{Predicate: "count >= 0"}}}
	if got := inv.String(); got != "invariant\n\t\tcount >= 0" {
		t.Errorf("Invariant.String() = %q", got)
	}

	if got := (Postcondition{}).String(); got != "" {
		t.Errorf("empty block rendered %q, want empty", got)
	}
}

func TestClauseLines(t *testing.T) {
	post := Postcondition{Clauses: []Clause{{Predicate: "Result > 0"}, {Tag: "t", Predicate: "a"}}}
	if got := post.ClauseLines(); got != "\n\t\t\tResult > 0\n\t\t\tt: a" {
		t.Errorf("ClauseLines() = %q", got)
	}
}

func TestIsEmpty(t *testing.T) {
	if !(Precondition{}).IsEmpty() {
		t.Error("zero block should be empty")
	}
	if (Precondition{}).Append(Clause{Predicate: "True"}).IsEmpty() {
		t.Error("block with a clause should not be empty")
	}
}
