package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// AssertText fails with a line diff when got differs from want.
func AssertText(t *testing.T, name, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	t.Fatalf("%s mismatch:\n%s", name, lineDiff(want, got, name))
}

// AssertFile compares the content of path with want.
func AssertFile(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	AssertText(t, filepath.Base(path), want, string(got))
}

// WriteFiles creates each relative path under root with its content.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

// lineDiff produces a simple line-by-line diff with three lines of context.
func lineDiff(expected, got, name string) string {
	var buf bytes.Buffer

	expectedLines := strings.Split(expected, "\n")
	gotLines := strings.Split(got, "\n")

	fmt.Fprintf(&buf, "--- %s (expected)\n", name)
	fmt.Fprintf(&buf, "+++ %s (got)\n", name)

	n := max(len(expectedLines), len(gotLines))
	inHunk := false
	var hunk []string
	flush := func() {
		for _, l := range hunk {
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
		hunk = nil
	}

	for i := 0; i < n; i++ {
		var exp, act string
		if i < len(expectedLines) {
			exp = expectedLines[i]
		}
		if i < len(gotLines) {
			act = gotLines[i]
		}

		if exp == act {
			if inHunk {
				hunk = append(hunk, " "+quoteTabs(exp))
				if len(hunk) > 6 {
					flush()
					inHunk = false
				}
			}
			continue
		}
		if !inHunk {
			inHunk = true
			fmt.Fprintf(&buf, "@@ line %d @@\n", i+1)
			for j := max(0, i-3); j < i; j++ {
				hunk = append(hunk, " "+quoteTabs(expectedLines[j]))
			}
		}
		if i < len(expectedLines) {
			hunk = append(hunk, "-"+quoteTabs(exp))
		}
		if i < len(gotLines) {
			hunk = append(hunk, "+"+quoteTabs(act))
		}
	}
	flush()
	return buf.String()
}

// quoteTabs makes indentation visible: Eiffel sources are tab-indented.
func quoteTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "→   ")
}
