package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/model"
)

// Models is the part of the workspace prompts read.
type Models interface {
	ModelExtended(name model.ClassName) (model.ModelExtended, error)
	ClassByName(name model.ClassName) (*model.Class, bool)
}

// Builder assembles prompts from parsed classes.
type Builder struct {
	models    Models
	templates Templates
}

// NewBuilder creates a builder. models may be nil, in which case no class
// model or inherited signatures are injected.
func NewBuilder(models Models, templates Templates) *Builder {
	return &Builder{models: models, templates: templates}
}

// Specification asks for the contracts of f. The prompt carries the class
// model, the signatures of the features f uses and a marker at f.
func (b *Builder) Specification(cls *model.Class, f *model.Feature, src string) *Prompt {
	p := &Prompt{
		System: b.templates.SpecificationSystem,
		Source: src,
		Format: llm.SpecificationSchema(),
	}

	if b.models != nil && len(cls.ModelNames) > 0 {
		if m, err := b.models.ModelExtended(cls.Name); err == nil {
			p.Injections = append(p.Injections, Injection{
				Position: FileBeginning,
				Text:     fmt.Sprintf(b.templates.ModelHeader, cls.Name) + "\n" + m.Describe(),
			})
		}
	}

	if sigs := b.dependencies(cls, f); len(sigs) > 0 {
		p.Injections = append(p.Injections, Injection{
			Position: BeforeFeature,
			Offset:   f.Range.StartByte,
			Text:     b.templates.DependenciesHeader + "\n" + strings.Join(sigs, "\n"),
		})
	}
	p.Injections = append(p.Injections, Injection{
		Position: BeforeFeature,
		Offset:   f.Range.StartByte,
		Text:     fmt.Sprintf(b.templates.SpecificationMarker, f.Name),
	})
	return p
}

// dependencies returns the signatures of the features f calls, resolved in
// cls and then in its parents.
func (b *Builder) dependencies(cls *model.Class, f *model.Feature) []string {
	var sigs []string
	for _, name := range f.Calls {
		if dep, ok := b.resolve(cls, name, map[model.ClassName]bool{}); ok {
			sigs = append(sigs, dep.Signature())
		}
	}
	return sigs
}

func (b *Builder) resolve(cls *model.Class, name model.FeatureName, seen map[model.ClassName]bool) (*model.Feature, bool) {
	if f, ok := cls.Feature(name); ok {
		return f, true
	}
	if b.models == nil {
		return nil, false
	}
	seen[cls.Name] = true
	for _, p := range cls.Parents {
		if seen[p.Name] {
			continue
		}
		parent, ok := b.models.ClassByName(p.Name)
		if !ok {
			continue
		}
		if f, ok := b.resolve(parent, p.OriginalName(name), seen); ok {
			return f, true
		}
	}
	return nil, false
}

// Fix asks for a repaired routine. With f nil the prompt covers every
// routine the counterexample names.
func (b *Builder) Fix(cls *model.Class, f *model.Feature, src, counterexample string) *Prompt {
	p := &Prompt{System: b.templates.FixSystem, Source: src}
	report := b.templates.CounterexampleLabel + "\n" + strings.TrimSpace(counterexample)

	if f != nil {
		p.Injections = append(p.Injections,
			Injection{Position: FileBeginning, Text: fmt.Sprintf(b.templates.FixRoutineBanner, f.Name, cls.Name)},
			Injection{Position: AfterFeature, Offset: endOffset(f), Text: report},
		)
		return p
	}

	names := NamedRoutines(cls, counterexample)
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + string(n) + "`"
	}
	p.Injections = append(p.Injections,
		Injection{Position: FileBeginning, Text: fmt.Sprintf(b.templates.FixClassBanner, strings.Join(quoted, ", "), cls.Name)},
		Injection{Position: FileBeginning, Text: report},
	)
	return p
}

// endOffset is the last byte of the feature, which sits on its `end` line.
func endOffset(f *model.Feature) uint32 {
	if f.Range.EndByte > f.Range.StartByte {
		return f.Range.EndByte - 1
	}
	return f.Range.StartByte
}

var wordPattern = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)

// NamedRoutines lists the routines of cls mentioned in text, in the order
// the class declares them.
func NamedRoutines(cls *model.Class, text string) []model.FeatureName {
	mentioned := map[string]bool{}
	for _, w := range wordPattern.FindAllString(text, -1) {
		mentioned[strings.ToLower(w)] = true
	}
	var out []model.FeatureName
	for _, f := range cls.Routines() {
		if mentioned[f.Name.Key()] {
			out = append(out, f.Name)
		}
	}
	return out
}
