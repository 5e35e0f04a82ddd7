package usecase

import (
	"regexp"
	"strings"
)

const (
	maxReplyRunes = 8500
	chunkRunes    = 4000
)

var (
	mdHeader     = regexp.MustCompile(`(?m)^#{1,6}[ \t]+(.*?)$`)
	mdBoldStars  = regexp.MustCompile(`(?s)\*\*(.+?)\*\*`)
	mdBoldUnders = regexp.MustCompile(`(?s)__(.+?)__`)
	mdListMarker = regexp.MustCompile(`(?m)^([ \t]*)[*\-][ \t]+`)
	extraNewline = regexp.MustCompile(`\n{3,}`)
)

// FormatReply adapts model markdown to the chat's legacy Markdown dialect:
// headers become bold caps, double markers single, list bullets "•".
func FormatReply(s string) string {
	s = mdHeader.ReplaceAllStringFunc(s, func(m string) string {
		title := mdHeader.FindStringSubmatch(m)[1]
		return "\n*" + strings.ToUpper(title) + "*"
	})
	s = mdBoldStars.ReplaceAllString(s, "*$1*")
	s = mdBoldUnders.ReplaceAllString(s, "*$1*")
	s = mdListMarker.ReplaceAllString(s, "${1}• ")
	return extraNewline.ReplaceAllString(s, "\n\n")
}
