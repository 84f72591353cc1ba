package llm

import "strings"

const fence = "```"

// ExtractMultilineCode returns the content of the first fenced block with a
// trailing newline. Text without an opening fence is returned unchanged, so
// extracting twice gives the same result. An unclosed block runs to the end
// of the text; one with nothing after the fence is empty.
func ExtractMultilineCode(text string) string {
	blocks, opened := extract(text, 1)
	if len(blocks) == 0 {
		if opened {
			return ""
		}
		return text
	}
	return blocks[0]
}

// ExtractAllCode returns the content of every fenced block in order. An
// empty unclosed block is left out.
func ExtractAllCode(text string) []string {
	blocks, _ := extract(text, -1)
	return blocks
}

// extract collects up to limit blocks; a negative limit means all. opened
// reports whether any opening fence was seen.
func extract(text string, limit int) (out []string, opened bool) {
	var (
		inside bool
		cur    strings.Builder
	)
	// A final newline ends the last line; it does not start an empty one.
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inside {
			if strings.HasPrefix(trimmed, fence) {
				inside, opened = true, true
				cur.Reset()
			}
			continue
		}
		if trimmed == fence {
			out = append(out, cur.String())
			inside = false
			if limit > 0 && len(out) == limit {
				return out, opened
			}
			continue
		}
		cur.WriteString(strings.TrimRight(line, "\r"))
		cur.WriteByte('\n')
	}
	// An unclosed block loses its trailing blank lines.
	if rest := strings.TrimRight(cur.String(), "\n"); inside && rest != "" {
		out = append(out, rest+"\n")
	}
	return out, opened
}
