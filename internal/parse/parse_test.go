package parse

import (
	"context"
	"reflect"
	"testing"

	sitter "github.com/smacker/go-tree-sitter"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/grammar"
	"eiffel-lsp/internal/model"
)

// newTestParser loads the grammar named by EIFFEL_TREE_SITTER_LIB and skips
// the test when none is installed.
func newTestParser(t *testing.T) *Parser {
	t.Helper()
	path := grammar.Resolve("")
	if path == "" || !grammar.Available() {
		t.Skip("tree-sitter-eiffel grammar not available")
	}
	lang, err := grammar.Load(path)
	if err != nil {
		t.Skipf("grammar did not load: %v", err)
	}
	p, err := New(lang, nil)
	if err != nil {
		t.Skipf("grammar does not match queries: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func TestNew_NilLanguage(t *testing.T) {
	_, err := New(nil, nil)
	if !errors.Is(err, errors.ConfigError) {
		t.Errorf("New(nil) error = %v, want CONFIG_ERROR", err)
	}
}

func TestParseClass_Trivial(t *testing.T) {
	p := newTestParser(t)

	cls, err := p.ParseClass(context.Background(), "foo.e", []byte("class FOO feature bar do end end"))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	if cls.Name != "FOO" {
		t.Errorf("Name = %q, want FOO", cls.Name)
	}
	if len(cls.Parents) != 0 {
		t.Errorf("Parents = %v, want none", cls.Parents)
	}
	if len(cls.Features) != 1 {
		t.Fatalf("len(Features) = %d, want 1", len(cls.Features))
	}
	f := cls.Features[0]
	if f.Name != "bar" {
		t.Errorf("Feature name = %q, want bar", f.Name)
	}
	if !f.Precondition.IsEmpty() || !f.Postcondition.IsEmpty() {
		t.Errorf("contracts not empty: pre=%v post=%v", f.Precondition.Clauses, f.Postcondition.Clauses)
	}
	if !f.Precondition.Range.IsCollapsed() {
		t.Errorf("absent precondition range %v is not collapsed", f.Precondition.Range)
	}
}

func TestParseClass_Contracts(t *testing.T) {
	p := newTestParser(t)

	src := `class COUNTER
feature
	value: INTEGER

	add (n: INTEGER)
		require
			positive: n > 0
		do
			value := value + n
		ensure
			value = old value + n
		end
invariant
	non_negative: value >= 0
end
`
	cls, err := p.ParseClass(context.Background(), "counter.e", []byte(src))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	add, ok := cls.Feature(model.FeatureName("ADD"))
	if !ok {
		t.Fatal("feature add not found")
	}
	if add.Parameters.Len() != 1 || add.Parameters.Names[0] != "n" {
		t.Errorf("Parameters = %+v", add.Parameters)
	}
	if got := add.Precondition.Clauses; len(got) != 1 || got[0].Tag != "positive" || got[0].Predicate != "n > 0" {
		t.Errorf("Precondition = %+v", got)
	}
	if got := add.Postcondition.Clauses; len(got) != 1 || got[0].Tag != "" {
		t.Errorf("Postcondition = %+v", got)
	}
	if got := cls.Invariant.Clauses; len(got) != 1 || got[0].Tag != "non_negative" {
		t.Errorf("Invariant = %+v", got)
	}
	if !add.IsRoutine() {
		t.Error("add is not a routine")
	}
	value, ok := cls.Feature("value")
	if !ok {
		t.Fatal("attribute value not found")
	}
	if value.IsRoutine() {
		t.Error("attribute value reported as routine")
	}
	if value.ReturnType == nil || value.ReturnType.Name != "INTEGER" {
		t.Errorf("value type = %v", value.ReturnType)
	}
}

func TestParseClass_SyntaxError(t *testing.T) {
	p := newTestParser(t)

	_, err := p.ParseClass(context.Background(), "broken.e", []byte("class FOO feature bar do"))
	if !errors.Is(err, errors.ParseError) {
		t.Errorf("error = %v, want PARSE_ERROR", err)
	}
}

func TestParseClass_Types(t *testing.T) {
	p := newTestParser(t)

	src := `class HOLDER
feature
	table: HASH_TABLE [V, K]
	nested: ARRAY [LIST [INTEGER]]
	pair: TUPLE [INTEGER, STRING]
	same: like table
	count: INTEGER
end
`
	cls, err := p.ParseClass(context.Background(), "holder.e", []byte(src))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}

	tests := []struct {
		feature  model.FeatureName
		kind     model.TypeKind
		name     model.ClassName
		typeText string
	}{
		{"table", model.ClassTypeKind, "HASH_TABLE", "HASH_TABLE [V, K]"},
		{"nested", model.ClassTypeKind, "ARRAY", "ARRAY [LIST [INTEGER]]"},
		{"pair", model.TupleTypeKind, "", "TUPLE [INTEGER, STRING]"},
		{"same", model.AnchoredKind, "", "like table"},
		{"count", model.ClassTypeKind, "INTEGER", "INTEGER"},
	}
	for _, tt := range tests {
		t.Run(string(tt.feature), func(t *testing.T) {
			f, ok := cls.Feature(tt.feature)
			if !ok {
				t.Fatalf("feature %s not found", tt.feature)
			}
			got := f.ReturnType
			if got == nil {
				t.Fatal("ReturnType = nil")
			}
			if got.Kind != tt.kind || got.Name != tt.name || got.Text != tt.typeText {
				t.Errorf("ReturnType = %+v, want {Kind:%v Text:%s Name:%s}", *got, tt.kind, tt.typeText, tt.name)
			}
		})
	}
}

func TestParseClass_Inheritance(t *testing.T) {
	p := newTestParser(t)

	src := `class HEIR
inherit
	BASE
		rename
			f as g,
			h as k
		undefine
			u
		redefine
			r, s
		select
			g
		end
	BOX [INTEGER]
feature
	r do end
	s do end
	t do end
end
`
	cls, err := p.ParseClass(context.Background(), "heir.e", []byte(src))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	if len(cls.Parents) != 2 {
		t.Fatalf("len(Parents) = %d, want 2", len(cls.Parents))
	}

	base := cls.Parents[0]
	want := model.ClassParent{
		Name:     "BASE",
		Type:     model.ClassType("BASE", "BASE"),
		Renames:  []model.Rename{{Old: "f", New: "g"}, {Old: "h", New: "k"}},
		Redefine: []model.FeatureName{"r", "s"},
		Undefine: []model.FeatureName{"u"},
		Select:   []model.FeatureName{"g"},
	}
	if !reflect.DeepEqual(base, want) {
		t.Errorf("Parents[0] = %+v, want %+v", base, want)
	}
	if got := base.OriginalName("k"); got != "h" {
		t.Errorf("OriginalName(k) = %s, want h", got)
	}

	box := cls.Parents[1]
	if box.Name != "BOX" || box.Type.Text != "BOX [INTEGER]" || box.Renames != nil || box.Redefine != nil {
		t.Errorf("Parents[1] = %+v", box)
	}

	for _, tt := range []struct {
		name      model.FeatureName
		redefined bool
	}{
		{"r", true},
		{"s", true},
		{"t", false},
	} {
		f, ok := cls.Feature(tt.name)
		if !ok {
			t.Fatalf("feature %s not found", tt.name)
		}
		if f.Precondition.Redefined != tt.redefined || f.Postcondition.Redefined != tt.redefined {
			t.Errorf("%s: Redefined = %v/%v, want %v", tt.name, f.Precondition.Redefined, f.Postcondition.Redefined, tt.redefined)
		}
	}
}

func TestTopLevelCalls(t *testing.T) {
	p := newTestParser(t)

	src := `class WORKER
feature
	run
		do
			f (a, g (b))
			h
		end
end
`
	root := parseTree(t, p, src)
	routine := findKind(root, kindAttrOrRoutine)
	if routine == nil {
		t.Fatal("no attribute_or_routine node")
	}

	got := p.TopLevelCalls(routine, []byte(src))
	want := []Call{
		{ID: "f", Args: []string{"a", "g (b)"}},
		{ID: "h"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TopLevelCalls() = %+v, want %+v", got, want)
	}

	ids := p.CallIDs(routine, []byte(src))
	if len(ids) != 2 {
		t.Errorf("CallIDs() = %v, want f and h", ids)
	}
	for _, nested := range []string{"g", "a", "b"} {
		if _, ok := ids[nested]; ok {
			t.Errorf("CallIDs() reports nested call %s", nested)
		}
	}
}

func TestParseClass_MultiNameDeclaration(t *testing.T) {
	p := newTestParser(t)

	src := `class POINT
feature
	x, y: INTEGER
end
`
	cls, err := p.ParseClass(context.Background(), "point.e", []byte(src))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}
	if len(cls.Features) != 2 {
		t.Fatalf("len(Features) = %d, want 2", len(cls.Features))
	}
	for i, name := range []model.FeatureName{"x", "y"} {
		f := cls.Features[i]
		if f.Name != name {
			t.Errorf("Features[%d].Name = %s, want %s", i, f.Name, name)
		}
		if f.ReturnType == nil || f.ReturnType.Name != "INTEGER" {
			t.Errorf("%s type = %v, want INTEGER", name, f.ReturnType)
		}
		if f.IsRoutine() {
			t.Errorf("%s reported as routine", name)
		}
	}
	if cls.Features[0].Range != cls.Features[1].Range {
		t.Errorf("ranges differ: %v and %v", cls.Features[0].Range, cls.Features[1].Range)
	}
}

func TestParseClass_Visibility(t *testing.T) {
	p := newTestParser(t)

	src := `class SAFE
feature
	open: INTEGER
feature {NONE}
	hidden: INTEGER
feature {ACCOUNT, BANK}
	shared: INTEGER
feature {ANY}
	public: INTEGER
end
`
	cls, err := p.ParseClass(context.Background(), "safe.e", []byte(src))
	if err != nil {
		t.Fatalf("ParseClass: %v", err)
	}

	tests := []struct {
		feature model.FeatureName
		want    model.Visibility
	}{
		{"open", model.Visibility{Kind: model.VisibleToAll}},
		{"hidden", model.Visibility{Kind: model.VisibleToNone}},
		{"shared", model.Visibility{Kind: model.VisibleToSome, Clients: []model.ClassName{"ACCOUNT", "BANK"}}},
		{"public", model.Visibility{Kind: model.VisibleToAll}},
	}
	for _, tt := range tests {
		t.Run(string(tt.feature), func(t *testing.T) {
			f, ok := cls.Feature(tt.feature)
			if !ok {
				t.Fatalf("feature %s not found", tt.feature)
			}
			if !reflect.DeepEqual(f.Visibility, tt.want) {
				t.Errorf("Visibility = %+v, want %+v", f.Visibility, tt.want)
			}
		})
	}
	if shared, _ := cls.Feature("shared"); !shared.Visibility.VisibleTo("BANK") || shared.Visibility.VisibleTo("CUSTOMER") {
		t.Errorf("shared visibility = %s", shared.Visibility)
	}
}

// parseTree parses src with p's grammar and fails on syntax errors.
func parseTree(t *testing.T, p *Parser, src string) *sitter.Node {
	t.Helper()
	parser := sitter.NewParser()
	t.Cleanup(parser.Close)
	parser.SetLanguage(p.lang)
	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		t.Fatalf("ParseCtx: %v", err)
	}
	t.Cleanup(tree.Close)
	root := tree.RootNode()
	if root.HasError() {
		t.Fatalf("syntax error at %v", firstError(root))
	}
	return root
}

// findKind returns the first node of kind in document order.
func findKind(n *sitter.Node, kind string) *sitter.Node {
	if n.Type() == kind {
		return n
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if found := findKind(n.NamedChild(i), kind); found != nil {
			return found
		}
	}
	return nil
}
