package prompt

import (
	"bytes"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"eiffel-lsp/internal/errors"
)

// Templates holds the fixed wording of prompts. Banners are fmt formats.
type Templates struct {
	SpecificationSystem string `toml:"specification_system"`
	FixSystem           string `toml:"fix_system"`
	ModelHeader         string `toml:"model_header"`
	DependenciesHeader  string `toml:"dependencies_header"`
	SpecificationMarker string `toml:"specification_marker"`
	FixRoutineBanner    string `toml:"fix_routine_banner"`
	FixClassBanner      string `toml:"fix_class_banner"`
	CounterexampleLabel string `toml:"counterexample_label"`
}

// DefaultTemplates returns the built-in wording.
func DefaultTemplates() Templates {
	return Templates{
		SpecificationSystem: "You are an expert in Eiffel and Design by Contract. " +
			"Write the precondition and postcondition clauses of the marked routine. " +
			"Use only features visible in the class. Answer with JSON matching the given schema; " +
			"a clause has an optional tag and a predicate written as an Eiffel boolean expression.",
		FixSystem: "You are an expert in Eiffel and the AutoProof verifier. " +
			"Rewrite routines so that they verify against their contracts. " +
			"Reply with each complete routine declaration, from its name to its final `end`, " +
			"in its own fenced code block. Do not weaken existing contracts.",
		ModelHeader:         "Model of %s:",
		DependenciesHeader:  "Features used by this routine:",
		SpecificationMarker: "Write the contracts of `%s`.",
		FixRoutineBanner:    "The routine `%s` of class %s fails verification. Fix it.",
		FixClassBanner:      "The routines %s of class %s fail verification. Fix them.",
		CounterexampleLabel: "Verifier output:",
	}
}

// LoadTemplates reads overrides from a TOML file on top of the defaults.
// Unknown keys are rejected so that typos do not go unnoticed.
func LoadTemplates(path string) (Templates, error) {
	t := DefaultTemplates()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return t, errors.New(errors.ConfigError, "cannot read prompt templates", err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&t); err != nil {
		return DefaultTemplates(), errors.New(errors.ConfigError, "invalid prompt templates "+path, err)
	}
	return t, nil
}
