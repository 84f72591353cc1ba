package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// RoutineSpecification is the pair of clause lists a model proposes for one
// routine. Its JSON form is the structured-output schema sent to the LLM.
type RoutineSpecification struct {
	Precondition  []Clause `json:"precondition"`
	Postcondition []Clause `json:"postcondition"`
}

// IsEmpty reports whether both clause lists are empty.
func (s RoutineSpecification) IsEmpty() bool {
	return len(s.Precondition) == 0 && len(s.Postcondition) == 0
}

// Pre wraps the precondition clauses in a block.
func (s RoutineSpecification) Pre() Precondition {
	return Precondition{Clauses: s.Precondition}
}

// Post wraps the postcondition clauses in a block.
func (s RoutineSpecification) Post() Postcondition {
	return Postcondition{Clauses: s.Postcondition}
}

// Without removes duplicated clauses and clauses already present in the
// routine's existing blocks.
func (s RoutineSpecification) Without(pre Precondition, post Postcondition) RoutineSpecification {
	return RoutineSpecification{
		Precondition:  s.Pre().RemoveRedundantClauses(pre).Clauses,
		Postcondition: s.Post().RemoveRedundantClauses(post).Clauses,
	}
}

// ParseJSON decodes a model reply. Clauses with an empty predicate are
// rejected, matching the schema's required field.
func ParseJSON(data []byte) (RoutineSpecification, error) {
	var s RoutineSpecification
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return RoutineSpecification{}, fmt.Errorf("decode routine specification: %w", err)
	}
	for _, list := range [][]Clause{s.Precondition, s.Postcondition} {
		for i, c := range list {
			if strings.TrimSpace(c.Predicate) == "" {
				return RoutineSpecification{}, fmt.Errorf("clause %d has an empty predicate", i)
			}
		}
	}
	return s, nil
}

const (
	preHeader  = "# Pre"
	postHeader = "# Post"
)

// Markdown renders the specification in the form FromMarkdown reads. Each
// clause is a list item holding one code span, so FromMarkdown gives the
// clauses back whatever their predicate starts with.
func (s RoutineSpecification) Markdown() string {
	var sb strings.Builder
	sb.WriteString(preHeader + "\n")
	for _, c := range s.Precondition {
		sb.WriteString(markdownItem(c) + "\n")
	}
	sb.WriteString(postHeader + "\n")
	for _, c := range s.Postcondition {
		sb.WriteString(markdownItem(c) + "\n")
	}
	return sb.String()
}

// markdownItem renders one clause. An untagged predicate that reads like
// "tag: rest" or starts with ":" gets an empty tag so ParseClause keeps it
// whole.
func markdownItem(c Clause) string {
	text := c.String()
	if c.Tag == "" && (tagPrefix.MatchString(c.Predicate) || strings.HasPrefix(c.Predicate, ":")) {
		text = ": " + c.Predicate
	}
	return "- `" + text + "`"
}

var (
	tagPrefix   = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)\s*:([^=].*|)$`)
	bulletStart = regexp.MustCompile(`^(?:[-*+]|\d+[.)])\s+`)
)

// FromMarkdown reads "# Pre" and "# Post" sections. Every other line inside a
// section is a candidate clause: an optional "tag:" prefix then the
// predicate. Lines outside a section, and lines that leave no predicate,
// are logged and skipped.
func FromMarkdown(md string, logger *slog.Logger) RoutineSpecification {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var (
		spec    RoutineSpecification
		section *[]Clause
	)
	for i, raw := range strings.Split(md, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			switch header := strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#"))); {
			case strings.HasPrefix(header, "pre"):
				section = &spec.Precondition
			case strings.HasPrefix(header, "post"):
				section = &spec.Postcondition
			default:
				section = nil
			}
			continue
		}
		if section == nil {
			logger.Debug("Ignoring line outside a contract section", "line", i+1)
			continue
		}
		clause, ok := ParseClause(line)
		if !ok {
			logger.Warn("Skipping unparseable clause", "line", i+1, "text", line)
			continue
		}
		*section = append(*section, clause)
	}
	return spec
}

// ParseClause reads one `tag: predicate` line. It strips one list marker and
// one enclosing code span, then splits off an optional tag. A leading ":"
// marks an untagged predicate.
func ParseClause(line string) (Clause, bool) {
	line = strings.TrimSpace(bulletStart.ReplaceAllString(strings.TrimSpace(line), ""))
	if len(line) >= 2 && line[0] == '`' && line[len(line)-1] == '`' {
		line = strings.TrimSpace(line[1 : len(line)-1])
	}
	if line == "" {
		return Clause{}, false
	}
	if rest, ok := strings.CutPrefix(line, ":"); ok && !strings.HasPrefix(rest, "=") {
		pred := strings.TrimSpace(rest)
		if pred == "" {
			return Clause{}, false
		}
		return Clause{Predicate: pred}, true
	}
	if m := tagPrefix.FindStringSubmatch(line); m != nil {
		pred := strings.TrimSpace(m[2])
		if pred == "" {
			return Clause{}, false
		}
		return Clause{Tag: m[1], Predicate: pred}, true
	}
	return Clause{Predicate: line}, true
}
