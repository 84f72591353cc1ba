// Package testutil provides helpers shared by package tests: a line-based
// Eiffel reader that stands in for the tree-sitter grammar, source fixtures
// and text diffs.
package testutil

import (
	"context"
	"regexp"
	"strings"

	"eiffel-lsp/internal/contract"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/span"
)

// LineParser reads a strict, tab-indented subset of Eiffel:
//
//	note
//		model: items
//	class NAME
//	inherit
//		PARENT redefine f
//	feature {NONE}
//		attr: TYPE
//		routine (a: T): R
//			require
//				tag: predicate
//			do
//				body
//			ensure
//				predicate
//			end
//	invariant
//		tag: predicate
//	end
//
// A feature starts at a line with exactly one leading tab. A routine ends at
// the first line that is exactly two tabs and `end`; a routine without one
// is a syntax error. Ranges are computed in bytes the way the tree-sitter
// parser reports them.
type LineParser struct{}

type line struct {
	text  string
	row   uint32
	start uint32
}

func (l line) end() uint32 { return l.start + uint32(len(l.text)) }

func (l line) point(col int) span.Point {
	return span.Point{Row: l.row, Column: uint32(col)}
}

func (l line) at(col int) span.Range {
	return span.Collapsed(l.point(col), l.start+uint32(col))
}

func between(from line, fromCol int, to line) span.Range {
	return span.Range{
		Start:     from.point(fromCol),
		End:       to.point(len(to.text)),
		StartByte: from.start + uint32(fromCol),
		EndByte:   to.end(),
	}
}

func splitLines(src []byte) []line {
	var out []line
	var offset uint32
	for i, text := range strings.Split(string(src), "\n") {
		out = append(out, line{text: text, row: uint32(i), start: offset})
		offset += uint32(len(text)) + 1
	}
	return out
}

// ParseClass implements the workspace source parser.
func (LineParser) ParseClass(ctx context.Context, path string, src []byte) (*model.Class, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.New(errors.Cancelled, "parse cancelled", err)
	}
	r := &reader{path: path, lines: splitLines(src)}
	return r.class()
}

type reader struct {
	path  string
	lines []line
	pos   int
}

func (r *reader) fail(l line, format string, args ...any) error {
	return errors.Newf(errors.ParseError, "%s:%d: "+format, append([]any{r.path, l.row + 1}, args...)...)
}

func (r *reader) skipBlank() {
	for r.pos < len(r.lines) && isBlank(r.lines[r.pos].text) {
		r.pos++
	}
}

func isBlank(s string) bool {
	t := strings.TrimSpace(s)
	return t == "" || strings.HasPrefix(t, "--")
}

func (r *reader) class() (*model.Class, error) {
	cls := &model.Class{Path: r.path}

	r.skipBlank()
	if r.pos < len(r.lines) && r.lines[r.pos].text == "note" {
		r.pos++
		cls.Notes = r.notes()
		r.skipBlank()
	}
	if r.pos >= len(r.lines) {
		return nil, errors.Newf(errors.ParseError, "%s: no class declaration", r.path)
	}

	header := r.lines[r.pos]
	fields := strings.Fields(header.text)
	if len(fields) == 3 && fields[0] == "deferred" && fields[1] == "class" {
		cls.Deferred = true
		fields = fields[1:]
	}
	if len(fields) != 2 || fields[0] != "class" {
		return nil, r.fail(header, "expected class header, got %q", header.text)
	}
	name, err := model.NewClassName(fields[1])
	if err != nil {
		return nil, err
	}
	cls.Name = name
	r.pos++

	visibility := model.VisibilityFromClients(nil)
	hasInvariant := false
	for {
		r.skipBlank()
		if r.pos >= len(r.lines) {
			return nil, r.fail(header, "class %s is not terminated by end", name)
		}
		l := r.lines[r.pos]
		switch {
		case l.text == "end":
			cls.Range = between(header, 0, l)
			if !hasInvariant {
				cls.Invariant.Range = l.at(0)
			}
			r.finish(cls)
			return cls, nil
		case l.text == "inherit":
			r.pos++
			parents, err := r.parents()
			if err != nil {
				return nil, err
			}
			cls.Parents = append(cls.Parents, parents...)
		case l.text == "feature" || strings.HasPrefix(l.text, "feature "):
			visibility = clientsOf(strings.TrimSpace(strings.TrimPrefix(l.text, "feature")))
			r.pos++
		case l.text == "invariant":
			r.pos++
			cls.Invariant = r.invariant(l)
			hasInvariant = true
		case strings.HasPrefix(l.text, "\t") && !strings.HasPrefix(l.text, "\t\t"):
			f, err := r.feature()
			if err != nil {
				return nil, err
			}
			f.Visibility = visibility
			cls.Features = append(cls.Features, f)
		default:
			return nil, r.fail(l, "unexpected line %q", l.text)
		}
	}
}

// finish fills the fields derived from the whole class.
func (r *reader) finish(cls *model.Class) {
	if values, ok := cls.Notes.Lookup("model"); ok {
		for _, v := range values {
			cls.ModelNames = append(cls.ModelNames, model.FeatureName(v))
		}
	}
	for i := range cls.Features {
		if cls.IsRedefinition(cls.Features[i].Name) {
			cls.Features[i].Precondition.Redefined = true
			cls.Features[i].Postcondition.Redefined = true
		}
	}
}

func (r *reader) notes() model.Notes {
	var notes model.Notes
	for r.pos < len(r.lines) && strings.HasPrefix(r.lines[r.pos].text, "\t") {
		tag, values, ok := strings.Cut(strings.TrimSpace(r.lines[r.pos].text), ":")
		r.pos++
		if !ok {
			continue
		}
		note := model.Note{Tag: strings.TrimSpace(tag)}
		for _, v := range strings.Split(values, ",") {
			if v = strings.Trim(strings.TrimSpace(v), `"`); v != "" {
				note.Values = append(note.Values, v)
			}
		}
		notes = append(notes, note)
	}
	return notes
}

func (r *reader) parents() ([]model.ClassParent, error) {
	var out []model.ClassParent
	for r.pos < len(r.lines) && strings.HasPrefix(r.lines[r.pos].text, "\t") {
		l := r.lines[r.pos]
		r.pos++
		if isBlank(l.text) {
			continue
		}
		head, redefine, _ := strings.Cut(strings.TrimSpace(l.text), " redefine ")
		t := parseType(head)
		if t.Kind != model.ClassTypeKind {
			return nil, r.fail(l, "parent %q is not a class type", head)
		}
		p := model.ClassParent{Name: t.Name, Type: t}
		for _, n := range strings.Split(redefine, ",") {
			if n = strings.TrimSpace(n); n != "" {
				p.Redefine = append(p.Redefine, model.FeatureName(n))
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *reader) invariant(keyword line) contract.Invariant {
	inv := contract.Invariant{}
	last := keyword
	for r.pos < len(r.lines) && strings.HasPrefix(r.lines[r.pos].text, "\t") {
		l := r.lines[r.pos]
		r.pos++
		if isBlank(l.text) {
			continue
		}
		if c, ok := contract.ParseClause(strings.TrimSpace(l.text)); ok {
			inv.Clauses = append(inv.Clauses, c)
			last = l
		}
	}
	inv.Range = between(keyword, 0, last)
	return inv
}

var (
	identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*`)
	wordPattern  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]*`)
)

// feature reads one declaration starting at the current line.
func (r *reader) feature() (model.Feature, error) {
	header := r.lines[r.pos]
	decl := strings.TrimPrefix(header.text, "\t")
	name := identPattern.FindString(decl)
	if name == "" || isKeyword(name) {
		return model.Feature{}, r.fail(header, "expected feature name, got %q", decl)
	}
	f := model.Feature{Name: model.FeatureName(name)}
	if err := parseSignature(&f, decl[len(name):]); err != nil {
		return f, r.fail(header, "%v", err)
	}
	r.pos++

	next := r.pos
	for next < len(r.lines) && strings.TrimSpace(r.lines[next].text) == "" {
		next++
	}
	if next >= len(r.lines) || !strings.HasPrefix(r.lines[next].text, "\t\t") {
		f.Range = between(header, 1, header)
		f.Precondition.Range = header.at(len(header.text))
		f.Postcondition.Range = f.Precondition.Range
		return f, nil
	}

	endAt := -1
	for i := next; i < len(r.lines); i++ {
		t := r.lines[i].text
		if t == "\t\tend" {
			endAt = i
			break
		}
		if t != "" && !strings.HasPrefix(t, "\t\t") {
			break
		}
	}
	if endAt < 0 {
		return f, r.fail(header, "feature %s is not terminated by end", name)
	}
	closing := r.lines[endAt]
	f.Range = between(header, 1, closing)
	f.Routine = true

	var (
		section               string
		preStart, postStart   *line
		preLast, postLast     line
		bodyStart             *line
		bodyLast              line
		preAnchor, postAnchor *line
		words                 []string
	)
	for i := next; i < endAt; i++ {
		l := r.lines[i]
		if isBlank(l.text) {
			continue
		}
		if strings.HasPrefix(l.text, "\t\t") && !strings.HasPrefix(l.text, "\t\t\t") {
			section = strings.TrimSpace(l.text)
			switch section {
			case "require", "require then":
				preStart, preLast = &r.lines[i], l
			case "local":
				if preAnchor == nil {
					preAnchor = &r.lines[i]
				}
			case "do", "once", "deferred", "attribute":
				if preAnchor == nil {
					preAnchor = &r.lines[i]
				}
				f.Deferred = section == "deferred"
				f.Routine = section != "attribute"
				bodyStart, bodyLast = &r.lines[i], l
			case "ensure", "ensure then", "ensure else":
				postStart, postLast = &r.lines[i], l
			case "rescue":
				if postAnchor == nil {
					postAnchor = &r.lines[i]
				}
			default:
				return f, r.fail(l, "unexpected routine section %q", section)
			}
			continue
		}
		content := strings.TrimSpace(l.text)
		switch section {
		case "require", "require then", "ensure", "ensure then", "ensure else":
			c, ok := contract.ParseClause(content)
			if !ok {
				continue
			}
			if strings.HasPrefix(section, "require") {
				f.Precondition.Clauses = append(f.Precondition.Clauses, c)
				preLast = l
			} else {
				f.Postcondition.Clauses = append(f.Postcondition.Clauses, c)
				postLast = l
			}
			words = append(words, wordPattern.FindAllString(c.Predicate, -1)...)
		case "do", "once", "deferred", "attribute":
			bodyLast = l
			words = append(words, wordPattern.FindAllString(content, -1)...)
		}
	}

	if preStart != nil {
		f.Precondition.Range = between(*preStart, 2, preLast)
	} else if preAnchor != nil {
		f.Precondition.Range = preAnchor.at(2)
	} else {
		f.Precondition.Range = closing.at(2)
	}
	if postStart != nil {
		f.Postcondition.Range = between(*postStart, 2, postLast)
	} else if postAnchor != nil {
		f.Postcondition.Range = postAnchor.at(2)
	} else {
		f.Postcondition.Range = closing.at(2)
	}
	if bodyStart != nil {
		f.BodyRange = between(*bodyStart, 2, bodyLast)
		src := make([]string, 0, int(bodyLast.row-bodyStart.row)+1)
		for row := bodyStart.row; row <= bodyLast.row; row++ {
			src = append(src, r.lines[row].text)
		}
		f.Body = strings.TrimPrefix(strings.Join(src, "\n"), "\t\t")
	}
	f.Calls = calls(words, f.Name)

	r.pos = endAt + 1
	return f, nil
}

// parseSignature reads `(a, b: T; c: U): R` after the feature name.
func parseSignature(f *model.Feature, rest string) error {
	rest = strings.TrimSpace(rest)
	if strings.HasPrefix(rest, "(") {
		closeAt := strings.Index(rest, ")")
		if closeAt < 0 {
			return errors.Newf(errors.ParseError, "unclosed argument list")
		}
		for _, group := range strings.Split(rest[1:closeAt], ";") {
			names, typ, ok := strings.Cut(group, ":")
			if !ok {
				return errors.Newf(errors.ParseError, "argument group %q has no type", group)
			}
			t := parseType(typ)
			for _, n := range strings.Split(names, ",") {
				f.Parameters.Add(model.FeatureName(strings.TrimSpace(n)), t)
			}
		}
		rest = strings.TrimSpace(rest[closeAt+1:])
	}
	if strings.HasPrefix(rest, ":") {
		t := parseType(rest[1:])
		f.ReturnType = &t
		return nil
	}
	if rest != "" {
		return errors.Newf(errors.ParseError, "unexpected %q after feature name", rest)
	}
	return nil
}

func parseType(s string) model.EiffelType {
	s = strings.Join(strings.Fields(s), " ")
	switch {
	case strings.HasPrefix(s, "like "):
		return model.Anchored(s)
	case strings.HasPrefix(strings.ToUpper(s), "TUPLE"):
		return model.TupleType(s)
	}
	return model.ClassType(s, model.ClassName(strings.ToUpper(identPattern.FindString(s))))
}

func clientsOf(s string) model.Visibility {
	if !strings.HasPrefix(s, "{") {
		return model.VisibilityFromClients(nil)
	}
	clients := []model.ClassName{}
	for _, c := range strings.Split(strings.Trim(s, "{}"), ",") {
		if n, err := model.NewClassName(c); err == nil {
			clients = append(clients, n)
		}
	}
	return model.VisibilityFromClients(clients)
}

var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "xor": true, "implies": true, "then": true, "else": true,
	"if": true, "elseif": true, "end": true, "do": true, "from": true, "until": true, "loop": true,
	"old": true, "Result": true, "Current": true, "True": true, "False": true, "Void": true,
	"create": true, "across": true, "all": true, "some": true, "as": true, "is": true,
	"feature": true, "invariant": true, "require": true, "ensure": true, "local": true, "attached": true,
}

func isKeyword(s string) bool { return keywords[s] }

// calls lists the identifiers a routine mentions, in first-use order.
func calls(words []string, self model.FeatureName) []model.FeatureName {
	seen := map[string]bool{self.Key(): true}
	var out []model.FeatureName
	for _, w := range words {
		if isKeyword(w) || seen[strings.ToLower(w)] {
			continue
		}
		seen[strings.ToLower(w)] = true
		out = append(out, model.FeatureName(w))
	}
	return out
}
