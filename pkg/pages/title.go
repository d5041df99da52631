package pages

import (
	"fmt"
	"strings"
)

const maxTitleRunes = 50

// Title derives a display title from an event container's text: the first
// non-blank line, cut to 50 runes plus "...". Containers without text are
// named "Match N" after their 0-based index.
func Title(text string, index int) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > maxTitleRunes {
			line = strings.TrimSpace(string(r[:maxTitleRunes])) + "..."
		}
		return line
	}
	return fmt.Sprintf("Match %d", index+1)
}
