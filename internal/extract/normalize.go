// Package extract turns free Spanish text into typed reservation slots.
// Every function here is pure; precedence between patterns is fixed, there
// is no scoring.
package extract

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// folded is a lowercase, accent-free view of a text with exactly one rune
// per original rune, so byte offsets in lower can be mapped back to the
// original spelling.
type folded struct {
	orig  []rune
	lower string
}

func fold(text string) folded {
	orig := []rune(text)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range orig {
		b.WriteRune(foldRune(t, r))
	}
	return folded{orig: orig, lower: b.String()}
}

func foldRune(t transform.Transformer, r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	s, _, err := transform.String(t, string(r))
	if err != nil || s == "" {
		return unicode.ToLower(r)
	}
	first, _ := utf8.DecodeRuneInString(s)
	return unicode.ToLower(first)
}

// original returns the source spelling of lower[start:end].
func (f folded) original(start, end int) string {
	rs := utf8.RuneCountInString(f.lower[:start])
	re := rs + utf8.RuneCountInString(f.lower[start:end])
	return string(f.orig[rs:re])
}

// Fold exposes the accent-free lowercase form used by every matcher.
func Fold(text string) string {
	return fold(text).lower
}

var numberWords = map[string]int{
	"un": 1, "uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
	"seis": 6, "siete": 7, "ocho": 8, "nueve": 9, "diez": 10, "once": 11,
	"doce": 12, "trece": 13, "catorce": 14, "quince": 15, "dieciseis": 16,
	"diecisiete": 17, "dieciocho": 18, "diecinueve": 19, "veinte": 20,
}

const numberWordAlt = `una|uno|dos|tres|cuatro|cinco|seis|siete|ocho|nueve|diez|once|doce|trece|catorce|quince|dieciseis|diecisiete|dieciocho|diecinueve|veinte`

func parseNumber(s string) (int, bool) {
	if n, ok := numberWords[s]; ok {
		return n, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
