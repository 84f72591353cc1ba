package repair

import (
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/model"
)

type candidate struct {
	feature model.FeatureName
	code    string
}

// candidates turns a reply into rewrites, in reply order. For a single
// routine every block is a candidate for it unless the block declares a
// different routine of the class. Class-wide, a block counts only when its
// first identifier is a routine of cls.
func candidates(cls *model.Class, target model.FeatureName, reply string) []candidate {
	blocks := llm.ExtractAllCode(reply)
	if len(blocks) == 0 {
		blocks = []string{llm.ExtractMultilineCode(reply)}
	}

	var out []candidate
	for _, b := range blocks {
		name, ok := FirstIdentifier(b)
		if !ok {
			continue
		}
		f, declared := cls.Feature(name)
		if declared && !f.IsRoutine() {
			continue
		}
		switch {
		case target != "":
			if declared && !f.Name.Equal(target) {
				continue
			}
			out = append(out, candidate{feature: target, code: b})
		case declared:
			out = append(out, candidate{feature: f.Name, code: b})
		}
	}
	return out
}
