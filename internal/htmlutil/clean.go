package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// MaxDescriptionLen bounds study descriptions carried in summaries.
const MaxDescriptionLen = 500

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// CleanDescription converts an upstream HTML description to a single line
// of plain text, truncated to maxRunes with an ellipsis.
func CleanDescription(s string, maxRunes int) string {
	text := strings.Join(strings.Fields(ToText(s)), " ")
	if maxRunes <= 0 {
		return text
	}
	r := []rune(text)
	if len(r) <= maxRunes {
		return text
	}
	return strings.TrimSpace(string(r[:maxRunes])) + "…"
}
