package memory

import (
	"fmt"
	"strings"
)

const maxHeaderHits = 8

// BuildHeader searches the notes workspace for lines relevant to prompt and
// renders them as a <memory> block to prepend ahead of the user's turn.
// An empty result returns "" so a turn with no relevant notes carries no
// extra markup, matching CoreMemoryBlock.Format's empty-is-empty rule.
func (w *Workspace) BuildHeader(prompt string) string {
	terms := significantTerms(prompt)
	seen := map[string]bool{}
	var lines []string

	for _, term := range terms {
		hits, err := w.search(term)
		if err != nil {
			continue
		}
		for _, h := range hits {
			key := h.Path + ":" + fmt.Sprint(h.Line)
			if seen[key] {
				continue
			}
			seen[key] = true
			lines = append(lines, fmt.Sprintf("%s:%d: %s", h.Path, h.Line, h.Content))
			if len(lines) >= maxHeaderHits {
				break
			}
		}
		if len(lines) >= maxHeaderHits {
			break
		}
	}

	if len(lines) == 0 {
		return ""
	}
	return "<memory>\n" + strings.Join(lines, "\n") + "\n</memory>"
}

// significantTerms extracts a small set of candidate search terms: words of
// four or more letters, deduplicated, capped so a long user turn doesn't
// trigger dozens of searches.
func significantTerms(prompt string) []string {
	fields := strings.Fields(prompt)
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		term := strings.ToLower(strings.Trim(f, ".,!?;:\"'()[]{}"))
		if len(term) < 4 || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
		if len(out) >= 6 {
			break
		}
	}
	return out
}
