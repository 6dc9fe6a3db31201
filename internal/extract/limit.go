package extract

import (
	"regexp"
	"strconv"

	"github.com/ggonzalez94/defi-agent/internal/lookup"
)

const (
	MinLimit = 1
	MaxLimit = 100
)

// Checked in priority order.
var limitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\btop\s+(\d+)\b`),
	regexp.MustCompile(`\b(\d+)\s+(?:protocols?|chains?|pools?|tokens?|projects?|results?)\b`),
	regexp.MustCompile(`\bshow\s+(?:me\s+)?(?:the\s+)?(\d+)\b`),
	regexp.MustCompile(`\blist\s+(?:the\s+)?(\d+)\b`),
}

// ClampLimit bounds n to [MinLimit, MaxLimit].
func ClampLimit(n int) int {
	return max(MinLimit, min(n, MaxLimit))
}

// Limit returns the requested result count, or the table default when the
// text asks for none or the number does not parse.
func (e *Extractor) Limit(text string) (limit int) {
	def := e.tables.DefaultLimit
	if def <= 0 {
		def = lookup.DefaultLimit
	}
	defer func() {
		if r := recover(); r != nil {
			e.logFault(lookup.CategoryLimit, r)
			limit = def
		}
	}()

	norm := NormalizeText(text)
	for _, re := range limitPatterns {
		m := re.FindStringSubmatch(norm)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return def
		}
		return ClampLimit(n)
	}
	return def
}
