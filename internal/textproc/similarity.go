package textproc

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns 1 - levenshtein(a, b) / max(len(a), len(b)) measured in
// runes over the preprocessed forms. Two empty strings are identical.
func Similarity(a, b string) float64 {
	a, b = Preprocess(a), Preprocess(b)
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
