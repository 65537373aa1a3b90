package synth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

var punctuationReplacer = strings.NewReplacer(
	"—", "-",
	"–", "-",
	"‒", "-",
	"…", "...",
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// NormalizeText prepares caller text for a TTS backend: collapses whitespace,
// folds typographic quotes and dashes to ASCII and makes sure the text ends
// like a sentence so engines do not clip the last word.
func NormalizeText(text string) string {
	text = whitespacePattern.ReplaceAllString(text, " ")
	text = punctuationReplacer.Replace(text)
	text = strings.TrimSpace(text)

	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)

	switch {
	case lastChar == '.' || lastChar == '!' || lastChar == '?':
		return text
	case unicode.IsPunct(lastChar):
		return strings.TrimRightFunc(text, unicode.IsPunct) + "."
	default:
		return text + "."
	}
}
