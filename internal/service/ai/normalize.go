package ai

import (
	"regexp"
	"strings"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Normalize trims the text, converts CRLF and CR to LF and collapses runs of
// three or more newlines into one blank line.
func Normalize(content string) string {
	if content == "" {
		return ""
	}
	content = strings.TrimSpace(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return excessNewlines.ReplaceAllString(content, "\n\n")
}
