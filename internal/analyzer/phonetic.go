package analyzer

import (
	"unicode"

	"github.com/dotcypress/phonetics"
)

// PhoneticCode returns the metaphone code for a token, or "" for tokens too
// short or non-alphabetic to encode usefully.
func PhoneticCode(token string) string {
	runes := []rune(token)
	if len(runes) < 2 {
		return ""
	}
	letters := 0
	for _, r := range runes {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters < 2 {
		return ""
	}
	return phonetics.EncodeMetaphone(asciiFold(token))
}

// asciiFold strips combining marks and transliterates the handful of
// Cyrillic letters the symbol tables carry, so phonetic codes line up
// across scripts.
func asciiFold(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if folded, ok := cyrillicFold[r]; ok {
			out = append(out, []rune(folded)...)
			continue
		}
		if r < 128 {
			out = append(out, r)
		}
	}
	return string(out)
}

var cyrillicFold = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "i", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
}
