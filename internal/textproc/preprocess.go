// Package textproc normalizes document and query text before it reaches
// the lexical index or an embedder.
//
// Preprocess is deterministic and idempotent. Stored document text is never
// rewritten; only derived index entries see the normalized form.
package textproc

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// Preprocess strips HTML tags, composes Unicode to NFC, standardizes
// Vietnamese tone-mark placement, replaces non-word characters with spaces
// and collapses whitespace.
func Preprocess(text string) string {
	text = htmlTag.ReplaceAllString(text, " ")
	text = norm.NFC.String(text)

	words := strings.Fields(text)
	for i, w := range words {
		words[i] = StandardizeTone(w)
	}
	text = strings.Join(words, " ")

	text = strings.Map(func(r rune) rune {
		if isWordRune(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)

	return strings.Join(strings.Fields(text), " ")
}

// IsBlank reports whether text has no indexable content.
func IsBlank(text string) bool {
	return Preprocess(text) == ""
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}
