// Package extract pulls chains, protocols, tokens, limits and relative
// timestamps out of free-form user text.
//
// Every entity lookup follows the same order and stops at the first hit:
// special-case rules, a whole-word alias match over the full text, a match
// on the phrase following a preposition ("on arb", "for joule"), and finally
// the category default. Extraction never fails; an internal fault is logged
// and the default is returned instead.
package extract

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
)

type Strategy string

const (
	StrategySpecialRule Strategy = "special-rule"
	StrategyExact       Strategy = "exact"
	StrategyContextual  Strategy = "contextual"
	StrategyDefault     Strategy = "default"
	StrategyNone        Strategy = "none"
)

// Result is the outcome of one entity extraction. Found reports whether
// Value came from the text itself rather than from a category default.
type Result struct {
	Value    string   `json:"value,omitempty"`
	Found    bool     `json:"found"`
	Strategy Strategy `json:"strategy"`
}

type Extractor struct {
	tables *lookup.Tables
	now    func() time.Time
	log    logrus.FieldLogger
}

type Option func(*Extractor)

// WithClock fixes the reference time used for relative timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Extractor) {
		if log != nil {
			e.log = log
		}
	}
}

func New(tables *lookup.Tables, opts ...Option) *Extractor {
	if tables == nil {
		tables = lookup.Default()
	}
	e := &Extractor{
		tables: tables,
		now:    time.Now,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extractor) Tables() *lookup.Tables { return e.tables }

func (e *Extractor) Chain(text string) Result { return e.entity(lookup.CategoryChain, text) }

func (e *Extractor) Protocol(text string) Result { return e.entity(lookup.CategoryProtocol, text) }

func (e *Extractor) Token(text string) Result { return e.entity(lookup.CategoryToken, text) }

func (e *Extractor) entity(category lookup.Category, text string) (res Result) {
	def := e.defaultFor(category)
	defer e.recoverTo(category, &res, def)

	table, ok := e.tables.For(category)
	if !ok {
		return def
	}
	norm := NormalizeText(text)
	if norm == "" {
		return def
	}
	if v, ok := e.applyRules(category, norm); ok {
		return Result{Value: v, Found: true, Strategy: StrategySpecialRule}
	}
	if v, ok := matchFirst(norm, table); ok {
		return Result{Value: v, Found: true, Strategy: StrategyExact}
	}
	if v, ok := matchContextual(norm, table); ok {
		return Result{Value: v, Found: true, Strategy: StrategyContextual}
	}
	return def
}

func (e *Extractor) defaultFor(category lookup.Category) Result {
	if category == lookup.CategoryChain && e.tables.DefaultChain != "" {
		return Result{Value: e.tables.DefaultChain, Strategy: StrategyDefault}
	}
	return Result{Strategy: StrategyNone}
}

func (e *Extractor) applyRules(category lookup.Category, norm string) (string, bool) {
	for _, rule := range e.tables.Rules {
		if rule.Category != category {
			continue
		}
		if indexWord(norm, rule.Trigger) >= 0 {
			return rule.Override, true
		}
	}
	return "", false
}

// recoverTo must be deferred directly so recover sees the panic.
func (e *Extractor) recoverTo(category lookup.Category, res *Result, def Result) {
	if r := recover(); r != nil {
		e.logFault(category, r)
		*res = def
	}
}

func (e *Extractor) logFault(category lookup.Category, fault any) {
	e.log.WithFields(logrus.Fields{
		"category": category.String(),
		"fault":    fmt.Sprint(fault),
	}).Error("extraction failed, using default")
}

// matchFirst returns the canonical value of the first declared alias that
// occurs in text as a whole word.
func matchFirst(text string, table lookup.Table) (string, bool) {
	for _, entry := range table.Entries() {
		if indexWord(text, entry.Alias) >= 0 {
			return entry.Canonical, true
		}
	}
	return "", false
}

type span struct {
	start, end int
	canonical  string
}

// matchAll returns every non-overlapping alias occurrence in text, in text
// order. When two aliases start at the same offset the longer one wins.
func matchAll(text string, table lookup.Table) []string {
	var spans []span
	for _, entry := range table.Entries() {
		for from := 0; from < len(text); {
			i := indexWord(text[from:], entry.Alias)
			if i < 0 {
				break
			}
			start := from + i
			if boundaryBefore(text, start) {
				spans = append(spans, span{start: start, end: start + len(entry.Alias), canonical: entry.Canonical})
			}
			from = start + len(entry.Alias)
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	out := make([]string, 0, len(spans))
	lastEnd := -1
	for _, s := range spans {
		if s.start < lastEnd {
			continue
		}
		out = append(out, s.canonical)
		lastEnd = s.end
	}
	return out
}
