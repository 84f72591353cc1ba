// Package command turns workspace/executeCommand requests into typed
// commands. AddSpecifications produces an edit without touching the file;
// FixRoutine and ClassWideFixes describe repair sessions.
package command

import (
	"bytes"
	"encoding/json"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/repair"
)

// Command names accepted by Parse.
const (
	AddSpecificationsName = "add_specifications_to_class"
	FixRoutineName        = "fix_routine"
	ClassWideFixesName    = "class_wide_fixes"
)

// Names lists the commands the server advertises.
func Names() []string {
	return []string{AddSpecificationsName, FixRoutineName, ClassWideFixesName}
}

// Workspace is the part of the class index commands resolve against.
type Workspace interface {
	Class(path string) (*model.Class, bool)
}

// Command is one of AddSpecifications, FixRoutine or ClassWideFixes.
type Command interface {
	Name() string
}

// Arguments is the single argument object every command takes. A routine
// is named either by Feature or by a Position inside it.
type Arguments struct {
	URI      protocol.DocumentUri `json:"uri"`
	Position *protocol.Position   `json:"position,omitempty"`
	Feature  string               `json:"feature,omitempty"`
}

// ArgumentsFor builds the argument list of a command.
func ArgumentsFor(args Arguments) []any {
	return []any{args}
}

// AddSpecifications asks the model for contracts of one routine.
type AddSpecifications struct {
	Path    string
	Class   *model.Class
	Feature *model.Feature
}

func (AddSpecifications) Name() string { return AddSpecificationsName }

// FixRoutine repairs one routine until it verifies.
type FixRoutine struct {
	Path    string
	Class   model.ClassName
	Feature model.FeatureName
}

func (FixRoutine) Name() string { return FixRoutineName }

// Request is the repair session this command runs.
func (c FixRoutine) Request() repair.Request {
	return repair.Request{Class: c.Class, Feature: c.Feature}
}

// ClassWideFixes repairs every failing routine of a class.
type ClassWideFixes struct {
	Path  string
	Class model.ClassName
}

func (ClassWideFixes) Name() string { return ClassWideFixesName }

// Request is the repair session this command runs.
func (c ClassWideFixes) Request() repair.Request {
	return repair.Request{Class: c.Class}
}

// Parse builds the command called name from its arguments, as decoded from
// the request or built by ArgumentsFor. Unknown names, malformed arguments
// and files the workspace has not parsed are InvalidRequest errors.
func Parse(ws Workspace, name string, args []any) (Command, error) {
	switch name {
	case AddSpecificationsName, FixRoutineName, ClassWideFixesName:
	default:
		return nil, errors.Newf(errors.InvalidRequest, "unknown command %q", name)
	}
	if len(args) != 1 {
		return nil, errors.Newf(errors.InvalidRequest, "%s takes one argument, got %d", name, len(args))
	}

	raw, err := json.Marshal(args[0])
	if err != nil {
		return nil, errors.New(errors.InvalidRequest, "malformed arguments for "+name, err)
	}
	var a Arguments
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&a); err != nil {
		return nil, errors.New(errors.InvalidRequest, "malformed arguments for "+name, err)
	}
	if a.URI == "" {
		return nil, errors.Newf(errors.InvalidRequest, "%s: missing uri", name)
	}

	path := paths.FromURI(string(a.URI))
	cls, ok := ws.Class(path)
	if !ok {
		return nil, errors.Newf(errors.InvalidRequest, "%s has not been parsed", path)
	}

	if name == ClassWideFixesName {
		return ClassWideFixes{Path: path, Class: cls.Name}, nil
	}

	f, err := routine(cls, a)
	if err != nil {
		return nil, err
	}
	if name == FixRoutineName {
		return FixRoutine{Path: path, Class: cls.Name, Feature: f.Name}, nil
	}
	return AddSpecifications{Path: path, Class: cls, Feature: f}, nil
}

func routine(cls *model.Class, a Arguments) (*model.Feature, error) {
	var (
		f  *model.Feature
		ok bool
	)
	switch {
	case strings.TrimSpace(a.Feature) != "":
		f, ok = cls.Feature(model.FeatureName(strings.TrimSpace(a.Feature)))
		if !ok {
			return nil, errors.Newf(errors.InvalidRequest, "%s has no feature %s", cls.Name, a.Feature)
		}
	case a.Position != nil:
		f, ok = cls.FeatureAt(PointOf(*a.Position))
		if !ok {
			return nil, errors.Newf(errors.InvalidRequest, "no feature of %s at %d:%d", cls.Name, a.Position.Line+1, a.Position.Character+1)
		}
	default:
		return nil, errors.New(errors.InvalidRequest, "a feature name or position is required", nil)
	}
	if !f.IsRoutine() {
		return nil, errors.Newf(errors.InvalidRequest, "%s is an attribute, not a routine", f.Name)
	}
	return f, nil
}
