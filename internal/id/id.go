// Package id maps user-facing chain, protocol and token names onto the
// identifiers collaborators expect. Normalization is deterministic and
// idempotent: normalizing an already canonical value returns it unchanged.
package id

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

var (
	aptosAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)
	eip155ChainPattern  = regexp.MustCompile(`^eip155:([0-9]+)$`)
	aptosChainPattern   = regexp.MustCompile(`^aptos:[0-9]+$`)
	slugPattern         = regexp.MustCompile(`[^a-z0-9]+`)
)

var chainByEVMID = map[int64]string{
	1:     registry.ChainEthereum,
	10:    registry.ChainOptimism,
	56:    registry.ChainBSC,
	137:   registry.ChainPolygon,
	8453:  registry.ChainBase,
	42161: registry.ChainArbitrum,
	43114: registry.ChainAvalanche,
}

// Bridged token spellings map onto the alias of the bridged variant.
var bridgeSuffixes = []struct {
	suffix string
	prefix string
}{
	{suffix: "(lz)", prefix: "lz"},
	{suffix: ".lz", prefix: "lz"},
	{suffix: ".wh", prefix: "wh"},
	{suffix: ".e", prefix: ""},
}

var protocolSuffixes = []string{" protocol", " finance", " labs", " dex", " exchange"}

var chainSuffixes = []string{" mainnet", " chain", " network"}

type Normalizer struct {
	tables *lookup.Tables
	log    logrus.FieldLogger
}

func NewNormalizer(tables *lookup.Tables, log logrus.FieldLogger) *Normalizer {
	if tables == nil {
		tables = lookup.Default()
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Normalizer{tables: tables, log: log}
}

var (
	defaultOnce       sync.Once
	defaultNormalizer *Normalizer
)

func std() *Normalizer {
	defaultOnce.Do(func() {
		defaultNormalizer = NewNormalizer(lookup.Default(), nil)
	})
	return defaultNormalizer
}

func NormalizeToken(input string) string { return std().Token(input) }

func NormalizeChain(input string) string { return std().Chain(input) }

func NormalizeProtocol(input string) string { return std().Protocol(input) }

// IsAddress reports whether s is a raw Aptos or EVM account address.
func IsAddress(s string) bool {
	return aptosAddressPattern.MatchString(s) || common.IsHexAddress(s)
}

// Token returns a coin type path or fungible asset address for input.
func (n *Normalizer) Token(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "::") || IsAddress(raw) || n.tables.Tokens.IsCanonical(raw) {
		return raw
	}
	if v, ok := n.tables.Tokens.Lookup(strings.TrimPrefix(raw, "$")); ok {
		return v
	}

	if i := strings.LastIndex(raw, ":"); i >= 0 {
		if rest := raw[i+1:]; IsAddress(rest) {
			return rest
		}
	}
	lower := strings.ToLower(strings.TrimPrefix(raw, "$"))
	for _, b := range bridgeSuffixes {
		if !strings.HasSuffix(lower, b.suffix) {
			continue
		}
		base := strings.TrimSpace(strings.TrimSuffix(lower, b.suffix))
		if v, ok := n.tables.Tokens.Lookup(b.prefix + base); ok {
			return v
		}
		if v, ok := n.tables.Tokens.Lookup(base); ok {
			return v
		}
	}
	return n.passThrough("token", raw)
}

// Chain returns the market-data display name for input.
func (n *Normalizer) Chain(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return ""
	}
	if n.tables.Chains.IsCanonical(raw) {
		return raw
	}
	if v, ok := n.tables.Chains.Lookup(raw); ok {
		return v
	}

	lower := strings.ToLower(raw)
	if m := eip155ChainPattern.FindStringSubmatch(lower); m != nil {
		if v, ok := chainByNumericID(m[1]); ok {
			return v
		}
	}
	if v, ok := chainByNumericID(lower); ok {
		return v
	}
	if aptosChainPattern.MatchString(lower) {
		return registry.ChainAptos
	}
	for _, suffix := range chainSuffixes {
		if base := strings.TrimSuffix(lower, suffix); base != lower {
			if v, ok := n.tables.Chains.Lookup(base); ok {
				return v
			}
		}
	}
	key := slugPattern.ReplaceAllString(lower, "")
	for _, entry := range n.tables.Chains.Entries() {
		if slugPattern.ReplaceAllString(entry.Alias, "") == key {
			return entry.Canonical
		}
	}
	return n.passThrough("chain", raw)
}

func chainByNumericID(s string) (string, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return "", false
	}
	v, ok := chainByEVMID[id]
	return v, ok
}

// Protocol returns the market-data slug for input. Unknown names are
// slugified the same way the market-data service builds its slugs.
func (n *Normalizer) Protocol(input string) string {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return ""
	}
	if n.tables.Protocols.IsCanonical(raw) {
		return raw
	}
	if v, ok := n.tables.Protocols.Lookup(raw); ok {
		return v
	}

	lower := strings.ToLower(raw)
	for _, suffix := range protocolSuffixes {
		if base := strings.TrimSuffix(lower, suffix); base != lower {
			if v, ok := n.tables.Protocols.Lookup(base); ok {
				return v
			}
		}
	}
	slug := strings.Trim(slugPattern.ReplaceAllString(lower, "-"), "-")
	if v, ok := n.tables.Protocols.Lookup(slug); ok {
		return v
	}
	if slug != raw {
		n.log.WithFields(logrus.Fields{"kind": "protocol", "input": raw, "slug": slug}).Warn("unknown protocol, using derived slug")
		return slug
	}
	return n.passThrough("protocol", raw)
}

func (n *Normalizer) passThrough(kind, raw string) string {
	n.log.WithFields(logrus.Fields{"kind": kind, "input": raw}).Warn("no canonical identifier, passing input through")
	return raw
}

// Token describes a resolved token with the precision needed to size amounts.
type Token struct {
	Symbol   string
	ID       string
	Decimals int
}

// ResolveToken normalizes input and attaches registry metadata. It fails
// when the token is unknown, since amounts cannot be sized without decimals.
func (n *Normalizer) ResolveToken(input string) (Token, error) {
	if strings.TrimSpace(input) == "" {
		return Token{}, clierr.New(clierr.CodeUsage, "token is required")
	}
	tokenID := n.Token(input)
	info, ok := registry.TokenByID(tokenID)
	if !ok {
		return Token{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("token %s is not in the registry; pass a known symbol or amount in base units", input))
	}
	return Token{Symbol: info.Symbol, ID: info.ID, Decimals: info.Decimals}, nil
}
