package command

import (
	"context"
	"log/slog"
	"os"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/prompt"
	"eiffel-lsp/internal/span"
)

// Edits asks gen for the routine's contracts and returns the edit adding
// the clauses the routine does not already have. The file is not written.
func (c AddSpecifications) Edits(ctx context.Context, gen llm.Generator, prompts *prompt.Builder, logger *slog.Logger) (*protocol.WorkspaceEdit, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	src, err := os.ReadFile(c.Path)
	if err != nil {
		return nil, errors.New(errors.InternalError, "cannot read "+c.Path, err)
	}

	p := prompts.Specification(c.Class, c.Feature, string(src))
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.Cancelled, "request cancelled", err)
	}
	resp, err := gen.Complete(ctx, p.Request())
	if err != nil {
		return nil, err
	}

	spec, err := DecodeSpecification(resp.Text(), logger)
	if err != nil {
		return nil, err
	}
	spec = spec.Without(c.Feature.Precondition, c.Feature.Postcondition)
	logger.Debug("Generated specification",
		"class", c.Class.Name,
		"feature", c.Feature.Name,
		"pre", len(spec.Precondition),
		"post", len(spec.Postcondition),
	)

	edits := SpecificationEdits(c.Feature, spec)
	uri := protocol.DocumentUri(paths.FileURI(c.Path))
	return &protocol.WorkspaceEdit{Changes: map[protocol.DocumentUri][]protocol.TextEdit{uri: edits}}, nil
}

// DecodeSpecification reads a structured reply. A fenced block is unwrapped
// first; a reply that is not JSON is read as "# Pre" / "# Post" markdown.
func DecodeSpecification(text string, logger *slog.Logger) (contract.RoutineSpecification, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimSpace(llm.ExtractMultilineCode(body))
	}
	if strings.HasPrefix(body, "{") {
		spec, err := contract.ParseJSON([]byte(body))
		if err != nil {
			return contract.RoutineSpecification{}, errors.New(errors.LLMError, "reply does not match the specification schema", err)
		}
		return spec, nil
	}
	spec := contract.FromMarkdown(body, logger)
	if spec.IsEmpty() && !strings.Contains(body, "# Pre") {
		return spec, errors.New(errors.LLMError, "reply contains no specification", nil)
	}
	return spec, nil
}

// SpecificationEdits inserts spec into f. A block missing from the source
// is inserted whole at its collapsed anchor; clauses for an existing block
// go after its last clause.
func SpecificationEdits(f *model.Feature, spec contract.RoutineSpecification) []protocol.TextEdit {
	var edits []protocol.TextEdit

	pre := spec.Pre()
	pre.Redefined = f.Precondition.Redefined
	if e, ok := blockEdit(pre, f.Precondition.Range); ok {
		edits = append(edits, e)
	}
	post := spec.Post()
	post.Redefined = f.Postcondition.Redefined
	if e, ok := blockEdit(post, f.Postcondition.Range); ok {
		edits = append(edits, e)
	}
	return edits
}

func blockEdit[K contract.Kind](b contract.Block[K], existing span.Range) (protocol.TextEdit, bool) {
	if b.IsEmpty() {
		return protocol.TextEdit{}, false
	}
	if existing.IsCollapsed() {
		at := PositionOf(existing.Start)
		return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: b.String() + "\n\t\t"}, true
	}
	at := PositionOf(existing.End)
	return protocol.TextEdit{Range: protocol.Range{Start: at, End: at}, NewText: b.ClauseLines()}, true
}
