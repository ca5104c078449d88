package tts

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	markdownReplacer = strings.NewReplacer(
		"**", "", // bold
		"__", "", // underline
		"~~", "", // strikethrough
		"`", "",  // inline code
		"*", "",  // italic
	)
	headingRegex        = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bulletRegex         = regexp.MustCompile(`(?m)^\s*[-+]\s+`)
	linkRegex           = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	removeEmojiRegex    = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{Z}\s]`)
	multipleSpacesRegex = regexp.MustCompile(`\s+`)
)

// normalizeTextForTTS turns a markdown-flavoured reply into plain speakable
// text, capped at maxChars characters when maxChars is positive.
func normalizeTextForTTS(text string, maxChars int) string {
	text = linkRegex.ReplaceAllString(text, "$1")
	text = headingRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	text = markdownReplacer.Replace(text)
	text = removeEmojiRegex.ReplaceAllString(text, "")
	text = multipleSpacesRegex.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)

	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = string([]rune(text)[:maxChars])
		// end on a word boundary when one is close
		if i := strings.LastIndexByte(text, ' '); i > len(text)*3/4 {
			text = text[:i]
		}
	}
	return text
}
