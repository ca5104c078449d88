// Package image builds scene prompts from the last narration and requests
// illustrations for them.
package image

import (
	"strings"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
)

const (
	PromptPrefix    = "D&D scene: "
	PromptSeparator = "\n"
	StyleSuffix     = "Style: painterly, high detail, cinematic lighting."
	// PromptCeiling bounds a built prompt, in characters.
	PromptCeiling = 1000

	DefaultSize = openai.CreateImageSize1024x1024
)

var allowedSizes = map[string]struct{}{
	openai.CreateImageSize256x256:   {},
	openai.CreateImageSize512x512:   {},
	openai.CreateImageSize1024x1024: {},
	openai.CreateImageSize1792x1024: {},
	openai.CreateImageSize1024x1792: {},
}

// AllowedSizes lists the supported size descriptors, smallest first.
func AllowedSizes() []string {
	return []string{
		openai.CreateImageSize256x256,
		openai.CreateImageSize512x512,
		openai.CreateImageSize1024x1024,
		openai.CreateImageSize1792x1024,
		openai.CreateImageSize1024x1792,
	}
}

// BuildPrompt wraps utterance with the scene prefix and style suffix. Only
// the utterance is truncated, so the result never exceeds PromptCeiling
// characters.
func BuildPrompt(utterance string) string {
	room := PromptCeiling - utf8.RuneCountInString(PromptPrefix) -
		utf8.RuneCountInString(PromptSeparator) - utf8.RuneCountInString(StyleSuffix)
	if room < 0 {
		room = 0
	}
	utterance = strings.TrimSpace(utterance)
	if utf8.RuneCountInString(utterance) > room {
		utterance = string([]rune(utterance)[:room])
	}
	return PromptPrefix + utterance + PromptSeparator + StyleSuffix
}

// SanitizeSize maps a size descriptor onto the allowed set. Supported sizes
// pass through unchanged; anything else becomes DefaultSize.
func SanitizeSize(size string) string {
	normalized := strings.ToLower(strings.TrimSpace(size))
	normalized = strings.NewReplacer("×", "x", "*", "x", " ", "").Replace(normalized)
	if _, ok := allowedSizes[normalized]; ok {
		return normalized
	}
	return DefaultSize
}
