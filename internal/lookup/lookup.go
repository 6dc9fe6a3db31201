// Package lookup holds the read-only alias tables used to resolve user text
// into chain names, protocol slugs and token identifiers.
package lookup

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ggonzalez94/defi-agent/internal/registry"
)

// Category tags what kind of entity an extraction is looking for.
type Category int

const (
	CategoryChain Category = iota
	CategoryProtocol
	CategoryToken
	CategoryLimit
	CategoryTimestamp
)

func (c Category) String() string {
	switch c {
	case CategoryChain:
		return "chain"
	case CategoryProtocol:
		return "protocol"
	case CategoryToken:
		return "token"
	case CategoryLimit:
		return "limit"
	case CategoryTimestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

type Entry struct {
	Alias     string
	Canonical string
}

// Table is an ordered alias table. Declaration order is the tie-break order
// for matching, so callers list longer aliases before shorter ones.
type Table struct {
	entries   []Entry
	byAlias   map[string]string
	canonical map[string]string
}

// NewTable lower-cases aliases and rejects duplicates.
func NewTable(aliases []registry.Alias) (Table, error) {
	t := Table{
		entries:   make([]Entry, 0, len(aliases)),
		byAlias:   make(map[string]string, len(aliases)),
		canonical: map[string]string{},
	}
	for _, a := range aliases {
		key := strings.ToLower(strings.TrimSpace(a.Alias))
		if key == "" || strings.TrimSpace(a.Canonical) == "" {
			return Table{}, fmt.Errorf("empty alias entry %q -> %q", a.Alias, a.Canonical)
		}
		if _, dup := t.byAlias[key]; dup {
			return Table{}, fmt.Errorf("duplicate alias %q", key)
		}
		t.byAlias[key] = a.Canonical
		t.entries = append(t.entries, Entry{Alias: key, Canonical: a.Canonical})
		t.canonical[strings.ToLower(a.Canonical)] = a.Canonical
	}
	return t, nil
}

func mustTable(aliases []registry.Alias) Table {
	t, err := NewTable(aliases)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup resolves an alias or a canonical value, case-insensitively.
func (t Table) Lookup(s string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	if v, ok := t.byAlias[key]; ok {
		return v, true
	}
	v, ok := t.canonical[key]
	return v, ok
}

// IsCanonical reports whether s is exactly one of the table's target values.
func (t Table) IsCanonical(s string) bool {
	v, ok := t.canonical[strings.ToLower(s)]
	return ok && v == s
}

// Entries returns a copy of the table in declaration order.
func (t Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Canonicals returns the distinct target values in first-declared order.
func (t Table) Canonicals() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(t.canonical))
	for _, e := range t.entries {
		if _, ok := seen[e.Canonical]; ok {
			continue
		}
		seen[e.Canonical] = struct{}{}
		out = append(out, e.Canonical)
	}
	return out
}

func (t Table) Len() int { return len(t.entries) }

// Rule overrides extraction for a category when Trigger appears in the text.
type Rule struct {
	Trigger  string
	Category Category
	Override string
}

const DefaultLimit = 5

// Tables bundles everything extraction needs. A Tables value is never
// mutated after construction and is safe to share across goroutines.
type Tables struct {
	Chains       Table
	Protocols    Table
	Tokens       Table
	Rules        []Rule
	DefaultChain string
	DefaultLimit int
}

// For returns the alias table backing category c.
func (t *Tables) For(c Category) (Table, bool) {
	switch c {
	case CategoryChain:
		return t.Chains, true
	case CategoryProtocol:
		return t.Protocols, true
	case CategoryToken:
		return t.Tokens, true
	default:
		return Table{}, false
	}
}

// WithDefaultChain returns a copy that falls back to chain instead of the
// built-in default. Unknown names are kept as given.
func (t *Tables) WithDefaultChain(chain string) *Tables {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		return t
	}
	if canonical, ok := t.Chains.Lookup(chain); ok {
		chain = canonical
	}
	cp := *t
	cp.DefaultChain = chain
	return &cp
}

var (
	defaultOnce   sync.Once
	defaultTables *Tables
)

// Default returns the process-wide tables built from the registry data.
func Default() *Tables {
	defaultOnce.Do(func() {
		rules := make([]Rule, 0, len(registry.SingleChainProtocols))
		for _, r := range registry.SingleChainProtocols {
			rules = append(rules, Rule{Trigger: r.Trigger, Category: CategoryChain, Override: r.Chain})
		}
		defaultTables = &Tables{
			Chains:       mustTable(registry.ChainAliases),
			Protocols:    mustTable(registry.ProtocolAliases),
			Tokens:       mustTable(registry.TokenAliases),
			Rules:        rules,
			DefaultChain: registry.DefaultChain,
			DefaultLimit: DefaultLimit,
		}
	})
	return defaultTables
}
