// Package comments strips Eiffel `--` comments from source text. String,
// verbatim string and character literals are copied untouched, so a `--`
// inside them survives. Note clauses are declarations, not comments, and
// are kept.
package comments

import (
	"bytes"
	"os"

	"eiffel-lsp/internal/fsutil"
)

type state int

const (
	code state = iota
	str
	char
	verbatim
)

// Strip removes every comment. A line that held only a comment is dropped
// with its newline; a trailing comment is removed with the blanks before
// it.
func Strip(src []byte) []byte {
	var (
		out    bytes.Buffer
		st     = code
		closer byte // ']' or '}' for the open verbatim string
	)
	out.Grow(len(src))

	lines := bytes.SplitAfter(src, []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		from := 0
		if st == verbatim {
			end := closesVerbatim(line, closer)
			if end < 0 {
				out.Write(line)
				continue
			}
			st, from = code, end
		}

		body, nl := line, []byte(nil)
		if bytes.HasSuffix(body, []byte("\r\n")) {
			body, nl = body[:len(body)-2], []byte("\r\n")
		} else if bytes.HasSuffix(body, []byte("\n")) {
			body, nl = body[:len(body)-1], []byte("\n")
		}

		cut := -1
		for i := from; i < len(body) && cut < 0; i++ {
			c := body[i]
			switch st {
			case code:
				switch {
				case c == '-' && i+1 < len(body) && body[i+1] == '-':
					cut = i
				case c == '"':
					if i+1 < len(body) && (body[i+1] == '[' || body[i+1] == '{') && onlyBlank(body[i+2:]) {
						closer = ']'
						if body[i+1] == '{' {
							closer = '}'
						}
						st = verbatim
						i = len(body)
						continue
					}
					st = str
				case c == '\'':
					st = char
				}
			case str:
				switch c {
				case '%':
					i++
				case '"':
					st = code
				}
			case char:
				switch c {
				case '%':
					i++
				case '\'':
					st = code
				}
			}
		}
		// Ordinary strings and characters do not span lines.
		if st == str || st == char {
			st = code
		}

		if cut < 0 {
			out.Write(line)
			continue
		}
		kept := bytes.TrimRight(body[:cut], " \t")
		if len(bytes.TrimSpace(kept)) == 0 {
			continue
		}
		out.Write(kept)
		out.Write(nl)
	}
	return out.Bytes()
}

// closesVerbatim returns the offset just past the `]"` (or `}"`) that
// closes a verbatim string at the start of line, or -1.
func closesVerbatim(line []byte, closer byte) int {
	i := len(line) - len(bytes.TrimLeft(line, " \t"))
	if i+1 < len(line) && line[i] == closer && line[i+1] == '"' {
		return i + 2
	}
	return -1
}

func onlyBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}

// StripFile rewrites path without comments. It reports whether the file
// changed; an unchanged file is not rewritten.
func StripFile(path string) (bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	out := Strip(src)
	if bytes.Equal(out, src) {
		return false, nil
	}
	if err := fsutil.WriteFileAtomic(path, out); err != nil {
		return false, err
	}
	return true, nil
}
