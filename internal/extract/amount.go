package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ggonzalez94/defi-agent/internal/lookup"
)

var (
	amountPattern    = regexp.MustCompile(`(?:^|[\s$])(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`)
	recipientPattern = regexp.MustCompile(`\bto\s+(0x[0-9a-f]{1,64})\b`)
	addressPattern   = regexp.MustCompile(`\b0x[0-9a-f]{1,64}\b`)
	quotedPattern    = regexp.MustCompile("\"([^\"]+)\"|`([^`]+)`")
)

// Amount returns the first standalone decimal number in text with thousands
// separators removed. Digits that are part of an address or a word ("0x1f",
// "v3") are ignored. A number with malformed grouping such as "1,00" or
// "1,0000" yields no amount rather than a truncated one.
func (e *Extractor) Amount(text string) (string, bool) {
	norm := NormalizeText(text)
	start, end, ok := amountSpan(norm)
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(norm[start:end], ",", ""), true
}

func amountSpan(norm string) (int, int, bool) {
	for _, idx := range amountPattern.FindAllStringSubmatchIndex(norm, -1) {
		start, end := idx[2], idx[3]
		rest := norm[end:]
		if rest != "" {
			r, _ := utf8.DecodeRuneInString(rest)
			if r == ',' && len(rest) > 1 && rest[1] >= '0' && rest[1] <= '9' {
				return 0, 0, false
			}
			if isWordRune(r) {
				if strings.Contains(norm[start:end], ",") {
					return 0, 0, false
				}
				continue
			}
		}
		return start, end, true
	}
	return 0, 0, false
}

// AmountToken returns the token named right after the amount, as in
// "1.5 apt" or "10 layerzero usdc". Only exact aliases and coin types count.
func (e *Extractor) AmountToken(text string) (string, bool) {
	norm := NormalizeText(text)
	_, end, ok := amountSpan(norm)
	if !ok {
		return "", false
	}
	table, ok := e.tables.For(lookup.CategoryToken)
	if !ok {
		return "", false
	}
	words := strings.Fields(norm[end:])
	for n := min(2, len(words)); n >= 1; n-- {
		phrase := make([]string, 0, n)
		for _, w := range words[:n] {
			phrase = append(phrase, trimWord(w))
		}
		if v, ok := table.Lookup(strings.Join(phrase, " ")); ok {
			return v, true
		}
	}
	return "", false
}

// Recipient prefers an address introduced by "to"; otherwise it takes the
// last bare address that is not part of a Move type path.
func (e *Extractor) Recipient(text string) (string, bool) {
	norm := NormalizeText(text)
	if m := recipientPattern.FindStringSubmatch(norm); m != nil && !followedByPath(norm, m[1]) {
		return m[1], true
	}
	var found string
	for _, idx := range addressPattern.FindAllStringIndex(norm, -1) {
		if strings.HasPrefix(norm[idx[1]:], "::") {
			continue
		}
		found = norm[idx[0]:idx[1]]
	}
	return found, found != ""
}

func followedByPath(text, addr string) bool {
	i := strings.Index(text, addr)
	return i >= 0 && strings.HasPrefix(text[i+len(addr):], "::")
}

// Quoted returns double-quoted or backtick-quoted strings with their
// original casing, in order.
func (e *Extractor) Quoted(text string) []string {
	text = quoteReplacer.Replace(text)
	var out []string
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		v := m[1]
		if v == "" {
			v = m[2]
		}
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
