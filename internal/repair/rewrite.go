package repair

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/fsutil"
	"eiffel-lsp/internal/model"
)

// RewriteFeature replaces the declaration of feature in the file at path
// with code. The file is re-parsed to locate the feature, written through a
// temporary file and parsed again. When the result does not parse, the file
// is reset to fallback (the pre-splice content when fallback is nil) and a
// RewriteError is returned.
func (l *Loop) RewriteFeature(ctx context.Context, path string, feature model.FeatureName, code string, fallback []byte) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return errors.New(errors.RewriteError, "cannot read "+path, err)
	}
	if fallback == nil {
		fallback = src
	}

	cls, err := l.parser.ParseClass(ctx, path, src)
	if err != nil {
		if errors.Is(err, errors.Cancelled) {
			return err
		}
		return errors.New(errors.RewriteError, "file no longer parses before rewrite", err)
	}
	f, ok := cls.Feature(feature)
	if !ok {
		return errors.Newf(errors.RewriteError, "feature %s not found in %s", feature, cls.Name)
	}

	out := Splice(src, f.Range.StartByte, f.Range.EndByte, code)
	if err := fsutil.WriteFileAtomic(path, out); err != nil {
		return errors.New(errors.RewriteError, "cannot write "+path, err)
	}

	if _, err := l.parser.ParseClass(ctx, path, out); err != nil {
		if rerr := fsutil.WriteFileAtomic(path, fallback); rerr != nil {
			l.logger.Error("Failed to revert rewritten file", "path", path, "error", rerr)
		}
		if errors.Is(err, errors.Cancelled) {
			return err
		}
		return errors.New(errors.RewriteError, fmt.Sprintf("candidate for %s does not parse", feature), err)
	}
	l.logger.Debug("Rewrote feature", "class", cls.Name, "feature", feature, "path", path)
	return nil
}

// Splice replaces src[start:end] with code. The first line of code lands
// at start; the remaining lines are dedented as a group and placed one
// level deeper than the line holding start.
func Splice(src []byte, start, end uint32, code string) []byte {
	lineStart := strings.LastIndexByte(string(src[:start]), '\n') + 1
	indent := string(src[lineStart:start])
	if strings.TrimLeft(indent, " \t") != "" {
		indent = ""
	}

	lines := strings.Split(strings.Trim(code, "\n"), "\n")
	head := strings.TrimSpace(lines[0])
	rest := strings.Split(dedent(strings.Join(lines[1:], "\n")), "\n")

	var sb strings.Builder
	sb.WriteString(head)
	if len(lines) > 1 {
		for _, l := range rest {
			sb.WriteByte('\n')
			if strings.TrimSpace(l) == "" {
				continue
			}
			sb.WriteString(indent + "\t" + strings.TrimRight(l, " \t\r"))
		}
	}

	out := make([]byte, 0, len(src)+sb.Len())
	out = append(out, src[:start]...)
	out = append(out, sb.String()...)
	out = append(out, src[end:]...)
	return out
}

// dedent removes the leading whitespace shared by every non-blank line.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix, first = ws, false
			continue
		}
		for !strings.HasPrefix(ws, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	if prefix == "" {
		return s
	}
	for i, l := range lines {
		lines[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(lines, "\n")
}

var identifierPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9_]*)`)

// FirstIdentifier returns the name a candidate declares: its first word,
// skipping blank and comment lines.
func FirstIdentifier(code string) (model.FeatureName, bool) {
	for _, l := range strings.Split(code, "\n") {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "--") {
			continue
		}
		m := identifierPattern.FindStringSubmatch(t)
		if m == nil {
			return "", false
		}
		return model.FeatureName(m[1]), true
	}
	return "", false
}
