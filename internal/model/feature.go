package model

import (
	"strings"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/span"
)

// Feature is a routine or attribute declaration.
type Feature struct {
	Name          FeatureName            `json:"name"`
	Visibility    Visibility             `json:"visibility"`
	Parameters    Parameters             `json:"parameters"`
	ReturnType    *EiffelType            `json:"returnType,omitempty"`
	Notes         Notes                  `json:"notes,omitempty"`
	Routine       bool                   `json:"routine"`
	Deferred      bool                   `json:"deferred,omitempty"`
	Body          string                 `json:"body,omitempty"`
	Calls         []FeatureName          `json:"calls,omitempty"`
	BodyRange     span.Range             `json:"bodyRange"`
	Precondition  contract.Precondition  `json:"precondition"`
	Postcondition contract.Postcondition `json:"postcondition"`
	Range         span.Range             `json:"range"`
}

// IsRoutine reports whether the feature has a routine body, deferred or not.
func (f *Feature) IsRoutine() bool {
	return f.Routine || f.Deferred || f.Parameters.Len() > 0
}

// IsFunction reports whether the routine returns a value.
func (f *Feature) IsFunction() bool {
	return f.IsRoutine() && f.ReturnType != nil
}

// Signature renders the terse declaration: `name (a: T; b: U): R`.
func (f *Feature) Signature() string {
	var sb strings.Builder
	sb.WriteString(string(f.Name))
	if n := f.Parameters.Len(); n > 0 {
		sb.WriteString(" (")
		for i := 0; i < n; i++ {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(string(f.Parameters.Names[i]))
			sb.WriteString(": ")
			sb.WriteString(f.Parameters.Types[i].Text)
		}
		sb.WriteByte(')')
	}
	if f.ReturnType != nil {
		sb.WriteString(": ")
		sb.WriteString(f.ReturnType.Text)
	}
	return sb.String()
}

// Location pins the feature to path.
func (f *Feature) Location(path string) span.Location {
	return span.Location{Path: path, Range: f.Range}
}

// Rename is one `old as new` pair of an inheritance clause.
type Rename struct {
	Old FeatureName `json:"old"`
	New FeatureName `json:"new"`
}

// ClassParent is one entry of an inherit clause.
type ClassParent struct {
	Name     ClassName     `json:"name"`
	Type     EiffelType    `json:"type"`
	Renames  []Rename      `json:"renames,omitempty"`
	Redefine []FeatureName `json:"redefine,omitempty"`
	Undefine []FeatureName `json:"undefine,omitempty"`
	Select   []FeatureName `json:"select,omitempty"`
}

// OriginalName maps a name seen in the heir back to the parent's name.
func (p ClassParent) OriginalName(name FeatureName) FeatureName {
	for _, r := range p.Renames {
		if r.New.Equal(name) {
			return r.Old
		}
	}
	return name
}

// Redefines reports whether the heir redefines name.
func (p ClassParent) Redefines(name FeatureName) bool {
	for _, r := range p.Redefine {
		if r.Equal(name) {
			return true
		}
	}
	return false
}
