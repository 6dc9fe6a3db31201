package extract

import (
	"regexp"
	"strings"

	"github.com/ggonzalez94/defi-agent/internal/lookup"
)

var prepositions = map[string]struct{}{
	"on": {}, "for": {}, "in": {}, "of": {}, "at": {}, "by": {},
}

var fillerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "my": {},
}

const (
	maxPhraseWords  = 3
	minPrefixLength = 3
)

// contextPhrases returns up to three words following each preposition in
// text. A phrase ends early at sentence punctuation.
func contextPhrases(text string) [][]string {
	words := strings.Fields(text)
	var phrases [][]string
	for i, w := range words {
		if _, ok := prepositions[w]; !ok {
			continue
		}
		var phrase []string
		for _, next := range words[i+1:] {
			clean := trimWord(next)
			if clean == "" {
				break
			}
			if _, filler := fillerWords[clean]; filler && len(phrase) == 0 {
				continue
			}
			phrase = append(phrase, clean)
			if len(phrase) == maxPhraseWords || strings.ContainsAny(next[len(next)-1:], ",.;:!?") {
				break
			}
		}
		if len(phrase) > 0 {
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

func matchContextual(text string, table lookup.Table) (string, bool) {
	for _, phrase := range contextPhrases(text) {
		for n := len(phrase); n >= 1; n-- {
			if v, ok := matchPhrase(phrase[:n], table); ok {
				return v, true
			}
		}
	}
	return "", false
}

// matchPhrase compares an isolated phrase against the table ignoring
// punctuation and spacing. A single word of at least three characters may
// also abbreviate an alias ("arb", "eth"); the shortest such alias wins.
func matchPhrase(words []string, table lookup.Table) (string, bool) {
	key := compact(strings.Join(words, " "))
	if key == "" {
		return "", false
	}
	entries := table.Entries()
	for _, entry := range entries {
		if compact(entry.Alias) == key || compact(entry.Canonical) == key {
			return entry.Canonical, true
		}
	}
	if len(words) != 1 || len(key) < minPrefixLength || isNumeric(key) {
		return "", false
	}
	best, bestLen := "", 0
	for _, entry := range entries {
		alias := compact(entry.Alias)
		if strings.HasPrefix(alias, key) && (bestLen == 0 || len(alias) < bestLen) {
			best, bestLen = entry.Canonical, len(alias)
		}
	}
	return best, bestLen > 0
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var (
	segmentSplit = regexp.MustCompile(`\s*(?:,|&|\band\b|\bvs\b\.?|\bversus\b)\s*`)
	broadContext = regexp.MustCompile(`\b(?:of|for|in|at|compare)\s+([a-z0-9][a-z0-9 .'\-]*?)(?:\s+tvls?\b|[,?!;]|$)`)
	trailingTVL  = regexp.MustCompile(`([a-z0-9][a-z0-9.'\-]*)\s+tvls?\b`)
)

// Protocols returns every protocol named in text, in order of appearance and
// without duplicates. It is used for comparisons like "aave vs compound".
func (e *Extractor) Protocols(text string) []string {
	return e.entities(lookup.CategoryProtocol, text)
}

// Chains is the multi-entity form of Chain. It never falls back to the
// default chain.
func (e *Extractor) Chains(text string) []string {
	return e.entities(lookup.CategoryChain, text)
}

func (e *Extractor) entities(category lookup.Category, text string) (out []string) {
	defer e.recoverList(category, &out)

	table, ok := e.tables.For(category)
	if !ok {
		return nil
	}
	norm := NormalizeText(text)
	if norm == "" {
		return nil
	}

	set := newOrderedSet()
	for _, segment := range segmentSplit.Split(norm, -1) {
		if matches := matchAll(segment, table); len(matches) > 0 {
			set.add(matches...)
			continue
		}
		for _, word := range strings.Fields(segment) {
			if v, ok := table.Lookup(trimWord(word)); ok {
				set.add(v)
			}
		}
	}
	if set.len() > 0 {
		return set.values()
	}

	var candidates []string
	for _, m := range broadContext.FindAllStringSubmatch(norm, -1) {
		candidates = append(candidates, m[1])
	}
	for _, m := range trailingTVL.FindAllStringSubmatch(norm, -1) {
		candidates = append(candidates, m[1])
	}
	for _, candidate := range candidates {
		for _, segment := range segmentSplit.Split(candidate, -1) {
			words := strings.Fields(segment)
			for i := range words {
				words[i] = trimWord(words[i])
			}
			if v, ok := matchPhrase(words, table); ok {
				set.add(v)
				continue
			}
			for _, w := range words {
				if v, ok := matchPhrase([]string{w}, table); ok {
					set.add(v)
				}
			}
		}
	}
	return set.values()
}

func (e *Extractor) recoverList(category lookup.Category, out *[]string) {
	if r := recover(); r != nil {
		e.logFault(category, r)
		*out = nil
	}
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet { return &orderedSet{seen: map[string]struct{}{}} }

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

func (s *orderedSet) len() int { return len(s.items) }

func (s *orderedSet) values() []string { return s.items }
