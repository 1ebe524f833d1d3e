package notify

import (
	"regexp"
	"strings"
)

var tagRe = regexp.MustCompile(`<[^>]*?>`)

// StripMarkup removes anything that looks like a markup tag.
func StripMarkup(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}
