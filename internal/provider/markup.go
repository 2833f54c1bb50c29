package provider

import (
	"regexp"
	"strings"
)

var (
	fenceRe    = regexp.MustCompile("(?m)^```[a-zA-Z0-9]*[ \t]*$")
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	emphasisRe = regexp.MustCompile(`\*{1,2}([^*\n]+)\*{1,2}`)
)

// StripMarkup removes markdown decoration (code fences, headings, emphasis,
// inline backticks) from prompt text. The content itself is preserved.
func StripMarkup(s string) string {
	s = fenceRe.ReplaceAllString(s, "")
	s = headingRe.ReplaceAllString(s, "")
	s = emphasisRe.ReplaceAllString(s, "$1")
	s = strings.ReplaceAll(s, "`", "")
	return s
}
