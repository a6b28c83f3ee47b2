package textproc

import "unicode"

// toneTable lists each Vietnamese base vowel followed by its five toned
// forms: huyền, sắc, hỏi, ngã, nặng.
var toneTable = [...][6]rune{
	{'a', 'à', 'á', 'ả', 'ã', 'ạ'},
	{'ă', 'ằ', 'ắ', 'ẳ', 'ẵ', 'ặ'},
	{'â', 'ầ', 'ấ', 'ẩ', 'ẫ', 'ậ'},
	{'e', 'è', 'é', 'ẻ', 'ẽ', 'ẹ'},
	{'ê', 'ề', 'ế', 'ể', 'ễ', 'ệ'},
	{'i', 'ì', 'í', 'ỉ', 'ĩ', 'ị'},
	{'o', 'ò', 'ó', 'ỏ', 'õ', 'ọ'},
	{'ô', 'ồ', 'ố', 'ổ', 'ỗ', 'ộ'},
	{'ơ', 'ờ', 'ớ', 'ở', 'ỡ', 'ợ'},
	{'u', 'ù', 'ú', 'ủ', 'ũ', 'ụ'},
	{'ư', 'ừ', 'ứ', 'ử', 'ữ', 'ự'},
	{'y', 'ỳ', 'ý', 'ỷ', 'ỹ', 'ỵ'},
}

type vowelPos struct{ row, tone int }

var vowels = func() map[rune]vowelPos {
	m := make(map[rune]vowelPos, len(toneTable)*6)
	for row, forms := range toneTable {
		for tone, r := range forms {
			m[r] = vowelPos{row, tone}
		}
	}
	return m
}()

// Rows of vowels carrying a quality diacritic (ă â ê ô ơ ư). These take the
// tone mark whenever they appear in a cluster.
var diacriticRows = map[int]bool{1: true, 2: true, 4: true, 7: true, 8: true, 10: true}

// Clusters without a final consonant that still take the tone on the
// second vowel (hoà, khoẻ, thuý).
var secondVowelPairs = map[[2]rune]bool{
	{'o', 'a'}: true,
	{'o', 'e'}: true,
	{'u', 'y'}: true,
}

// StandardizeTone moves the tone mark of a single Vietnamese syllable to the
// vowel modern orthography puts it on. Words without a tone mark, or
// without vowels, are returned unchanged. Letter case is preserved.
func StandardizeTone(word string) string {
	runes := []rune(word)

	tone := 0
	var pos []int
	for i, r := range runes {
		v, ok := vowels[unicode.ToLower(r)]
		if !ok {
			continue
		}
		if v.tone != 0 {
			if tone != 0 {
				// Two tone marks: not a single syllable, leave it alone.
				return word
			}
			tone = v.tone
		}
		pos = append(pos, i)
	}
	if tone == 0 {
		return word
	}

	for _, i := range pos {
		runes[i] = setTone(runes[i], 0)
	}

	// "qu" and "gi" onsets: the u/i belongs to the consonant when another
	// vowel follows.
	if len(pos) > 1 && pos[0] == 1 {
		onset := [2]rune{unicode.ToLower(runes[0]), unicode.ToLower(runes[1])}
		if onset == [2]rune{'q', 'u'} || onset == [2]rune{'g', 'i'} {
			pos = pos[1:]
		}
	}

	target := pickNucleus(runes, pos)
	runes[target] = setTone(runes[target], tone)
	return string(runes)
}

func pickNucleus(runes []rune, pos []int) int {
	if len(pos) == 1 {
		return pos[0]
	}

	// The last diacritic vowel wins, so ươ puts the tone on ơ.
	for i := len(pos) - 1; i >= 0; i-- {
		if diacriticRows[vowels[unicode.ToLower(runes[pos[i]])].row] {
			return pos[i]
		}
	}

	if len(pos) >= 3 {
		return pos[1]
	}

	hasFinal := false
	for _, r := range runes[pos[len(pos)-1]+1:] {
		if unicode.IsLetter(r) {
			hasFinal = true
			break
		}
	}
	pair := [2]rune{unicode.ToLower(runes[pos[0]]), unicode.ToLower(runes[pos[1]])}
	if hasFinal || secondVowelPairs[pair] {
		return pos[1]
	}
	return pos[0]
}

func setTone(r rune, tone int) rune {
	lower := unicode.ToLower(r)
	v, ok := vowels[lower]
	if !ok {
		return r
	}
	out := toneTable[v.row][tone]
	if lower != r {
		return unicode.ToUpper(out)
	}
	return out
}
