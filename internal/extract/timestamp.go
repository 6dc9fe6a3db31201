package extract

import (
	"regexp"
	"strconv"
	"time"

	"github.com/ggonzalez94/defi-agent/internal/lookup"
)

var (
	agoPattern       = regexp.MustCompile(`\b(\d+)\s+(day|week|month)s?\s+ago\b`)
	lastWeekPattern  = regexp.MustCompile(`\b(?:last|previous)\s+week\b`)
	lastMonthPattern = regexp.MustCompile(`\b(?:last|previous)\s+month\b`)
	yesterdayPattern = regexp.MustCompile(`\byesterday\b`)
)

// Timestamp resolves a relative time phrase against the extractor clock.
// ok is false when the text has no time filter.
func (e *Extractor) Timestamp(text string) (ts time.Time, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logFault(lookup.CategoryTimestamp, r)
			ts, ok = time.Time{}, false
		}
	}()

	norm := NormalizeText(text)
	now := e.now().UTC()
	if m := agoPattern.FindStringSubmatch(norm); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		}
	}
	switch {
	case yesterdayPattern.MatchString(norm):
		return now.AddDate(0, 0, -1), true
	case lastWeekPattern.MatchString(norm):
		return now.AddDate(0, 0, -7), true
	case lastMonthPattern.MatchString(norm):
		return now.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}
