package imagegen

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// maxUserText caps free-form user input embedded into provider prompts.
const maxUserText = 1000

// CleanText NFC-normalizes s, drops control characters and collapses runs of
// whitespace, truncating to limit runes.
func CleanText(s string, limit int) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	space := false
	count := 0
	for _, r := range s {
		if limit > 0 && count >= limit {
			break
		}
		if unicode.IsSpace(r) {
			space = b.Len() > 0
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		if space {
			b.WriteRune(' ')
			count++
			space = false
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

func userInstruction(userText string) string {
	if u := CleanText(userText, maxUserText); u != "" {
		return u
	}
	return "none"
}

// BuildEditPrompt is the instruction sent to image-to-image providers.
func BuildEditPrompt(themeGuidance, userText string) string {
	parts := []string{
		fmt.Sprintf("Generate an image that incorporates the theme: %s.", CleanText(themeGuidance, 0)),
		fmt.Sprintf("MUST follow the user's instruction: %s.", userInstruction(userText)),
		"MUST use precisely the layout of the image, including the main characters/objects and their positions.",
		"MUST focus on the main characters/objects and critical features of the characters/objects in the image.",
		"MUST create clothing, accessories, and visual elements that align with the theme.",
		"MAINTAIN the exact layout of the original image. Characters in the foreground must remain in the foreground, and background elements must stay in the background.",
		"MUST NOT use realistic style. MUST NOT display explicit nudity.",
	}
	return strings.Join(parts, " ")
}

// BuildDescribeInstruction asks a vision model for a text-to-image prompt that
// carries the theme and the source layout.
func BuildDescribeInstruction(themeGuidance, userText string) string {
	parts := []string{
		"Analyze this image and provide a detailed prompt that will be used to generate a new image that incorporates",
		fmt.Sprintf("the theme: %s.", CleanText(themeGuidance, 0)),
		fmt.Sprintf("MUST follow the user's instruction: %s.", userInstruction(userText)),
		"MUST use precisely the layout of the image, including the main characters/objects and their positions.",
		"MUST focus on the main characters/objects and critical features of the characters/objects in the image.",
		"MUST create clothing, accessories, and visual elements in your description that align with the theme.",
		"MUST NOT use realistic style. MUST NOT display explicit nudity.",
		"MAINTAIN the exact layout of the original image. Characters in the foreground must remain in the foreground, and background elements must stay in the background. Spatial relationships between all elements must be preserved.",
		"MUST use less than 200 words.",
	}
	return strings.Join(parts, " ")
}
