package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'", "‛", "'",
	"“", `"`, "”", `"`,
	"–", "-", "—", "-",
)

// NormalizeText lower-cases s, unifies typographic quotes and dashes, and
// collapses runs of whitespace into single spaces.
func NormalizeText(s string) string {
	s = quoteReplacer.Replace(s)
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// indexWord returns the byte offset of the first occurrence of word in text
// that is not glued to surrounding letters or digits, or -1.
func indexWord(text, word string) int {
	if word == "" {
		return -1
	}
	for from := 0; from <= len(text)-len(word); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return -1
		}
		start := from + i
		end := start + len(word)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start
		}
		from = start + 1
	}
	return -1
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWordRune(r)
}

// compact drops everything but letters and digits, so "op-mainnet",
// "OP Mainnet" and "opmainnet" compare equal.
func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trimWord strips punctuation around a single word, including a trailing
// possessive ("thala's" -> "thala").
func trimWord(w string) string {
	w = strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
	w = strings.TrimSuffix(w, "'s")
	return strings.TrimFunc(w, func(r rune) bool { return !isWordRune(r) })
}
