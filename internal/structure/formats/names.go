package formats

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// cleanPropertyName turns a human label into a camelCase property name
// safe for use in shape URIs.
func cleanPropertyName(label string) string {
	var cleaned strings.Builder
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		}
	}

	words := strings.Fields(cleaned.String())
	if len(words) == 0 {
		return "property"
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(words[0]))
	for _, word := range words[1:] {
		r, size := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(strings.ToLower(word[size:]))
	}
	return b.String()
}

// decodeText interprets downloaded bytes as UTF-8 (with or without
// BOM) and falls back to Latin-1, which the statistics office still
// uses for some exports.
func decodeText(bs []byte) string {
	bs = trimBOM(bs)
	if utf8.Valid(bs) {
		return string(bs)
	}

	// Latin-1: each byte is the corresponding code point.
	runes := make([]rune, len(bs))
	for i, b := range bs {
		runes[i] = rune(b)
	}
	return string(runes)
}

func trimBOM(bs []byte) []byte {
	if len(bs) >= 3 && bs[0] == 0xEF && bs[1] == 0xBB && bs[2] == 0xBF {
		return bs[3:]
	}
	return bs
}
