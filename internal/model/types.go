package model

import (
	"eiffel-lsp/internal/errors"
)

// TypeKind tags the EiffelType variants.
type TypeKind int

const (
	ClassTypeKind TypeKind = iota
	TupleTypeKind
	AnchoredKind
)

func (k TypeKind) String() string {
	switch k {
	case ClassTypeKind:
		return "class_type"
	case TupleTypeKind:
		return "tuple_type"
	case AnchoredKind:
		return "anchored"
	default:
		return "unknown"
	}
}

// EiffelType is a declared type. Only class types name a class; tuple and
// anchored (`like x`) types keep their text.
type EiffelType struct {
	Kind TypeKind  `json:"kind"`
	Text string    `json:"text"`
	Name ClassName `json:"name,omitempty"`
}

// ClassType builds a class type. name is the outermost class, so
// `ARRAY [INTEGER]` has name ARRAY.
func ClassType(text string, name ClassName) EiffelType {
	return EiffelType{Kind: ClassTypeKind, Text: text, Name: name}
}

// TupleType builds a tuple type.
func TupleType(text string) EiffelType {
	return EiffelType{Kind: TupleTypeKind, Text: text}
}

// Anchored builds an anchored type.
func Anchored(text string) EiffelType {
	return EiffelType{Kind: AnchoredKind, Text: text}
}

// ClassName returns the class a class type refers to. Tuple and anchored
// types fail with a ResolveError whose details carry the kind.
func (t EiffelType) ClassName() (ClassName, error) {
	if t.Kind == ClassTypeKind {
		return t.Name, nil
	}
	return "", errors.Newf(errors.ResolveError, "%s %q does not name a class", t.Kind, t.Text).WithDetails(t.Kind)
}

func (t EiffelType) String() string { return t.Text }

// Parameters holds a routine's formal arguments as parallel slices.
type Parameters struct {
	Names []FeatureName `json:"names"`
	Types []EiffelType  `json:"types"`
}

// Add appends one argument, keeping both slices the same length.
func (p *Parameters) Add(name FeatureName, typ EiffelType) {
	p.Names = append(p.Names, name)
	p.Types = append(p.Types, typ)
}

// Len returns the number of arguments.
func (p Parameters) Len() int { return len(p.Names) }
