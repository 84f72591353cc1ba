// Package prompt builds the LLM conversations for contract generation and
// routine repair. A prompt is the class source annotated with comment lines
// that carry the extra context.
package prompt

import (
	"sort"
	"strings"

	"eiffel-lsp/internal/llm"
)

// Position says where an injection goes relative to its offset.
type Position int

const (
	// BeforeFeature inserts above the line holding the offset.
	BeforeFeature Position = iota
	// AfterFeature inserts below the line holding the offset.
	AfterFeature
	// FileBeginning inserts at the top of the file; the offset is ignored.
	FileBeginning
)

// Injection is a block of text rendered as `-- ` comment lines.
type Injection struct {
	Position Position
	Offset   uint32
	Text     string
}

// Prompt is a system message plus an annotated source snippet.
type Prompt struct {
	System     string
	Source     string
	Injections []Injection
	Format     *llm.ResponseFormat
}

// Render returns Source with every injection inserted. Injections at the
// same place keep their relative order.
func (p *Prompt) Render() string {
	lines := strings.SplitAfter(p.Source, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	type placed struct {
		line  int // insert before this line index
		order int
		text  string
	}
	var inserts []placed
	for i, inj := range p.Injections {
		switch inj.Position {
		case FileBeginning:
			inserts = append(inserts, placed{line: 0, order: i, text: commentLines(inj.Text, "")})
		case BeforeFeature:
			at := lineOf(lines, inj.Offset)
			inserts = append(inserts, placed{line: at, order: i, text: commentLines(inj.Text, indentOf(lines, at))})
		case AfterFeature:
			at := lineOf(lines, inj.Offset)
			inserts = append(inserts, placed{line: at + 1, order: i, text: commentLines(inj.Text, indentOf(lines, at))})
		}
	}
	sort.SliceStable(inserts, func(i, j int) bool {
		if inserts[i].line != inserts[j].line {
			return inserts[i].line < inserts[j].line
		}
		return inserts[i].order < inserts[j].order
	})

	var sb strings.Builder
	next := 0
	for i, line := range lines {
		for next < len(inserts) && inserts[next].line == i {
			sb.WriteString(inserts[next].text)
			next++
		}
		sb.WriteString(line)
		if !strings.HasSuffix(line, "\n") {
			sb.WriteByte('\n')
		}
	}
	for ; next < len(inserts); next++ {
		sb.WriteString(inserts[next].text)
	}
	return sb.String()
}

// Messages returns the conversation: system first, then the rendered source.
func (p *Prompt) Messages() []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: p.System},
		{Role: llm.RoleUser, Content: p.Render()},
	}
}

// Request wraps Messages with the prompt's response format.
func (p *Prompt) Request() llm.Request {
	return llm.Request{Messages: p.Messages(), Format: p.Format}
}

// lineOf returns the index of the line containing byte offset.
func lineOf(lines []string, offset uint32) int {
	var pos uint32
	for i, l := range lines {
		pos += uint32(len(l))
		if offset < pos {
			return i
		}
	}
	if len(lines) == 0 {
		return 0
	}
	return len(lines) - 1
}

func indentOf(lines []string, i int) string {
	if i >= len(lines) {
		return ""
	}
	l := lines[i]
	return l[:len(l)-len(strings.TrimLeft(l, " \t"))]
}

func commentLines(text, indent string) string {
	var sb strings.Builder
	for _, l := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		sb.WriteString(indent)
		if l == "" {
			sb.WriteString("--\n")
			continue
		}
		sb.WriteString("-- ")
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}
