package actions

import (
	"strings"
	"time"

	"github.com/ggonzalez94/defi-agent/internal/extract"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

// Params carries the inputs of one action. Text is the user's message;
// every other field is an explicit value that takes precedence over
// whatever extraction finds in Text.
type Params struct {
	Text   string `json:"text,omitempty"`
	Action string `json:"action,omitempty"`

	Protocol  string     `json:"protocol,omitempty"`
	Protocols []string   `json:"protocols,omitempty"`
	Chain     string     `json:"chain,omitempty"`
	Token     string     `json:"token,omitempty"`
	Category  string     `json:"category,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	At        *time.Time `json:"at,omitempty"`
	MinTVLUSD float64    `json:"min_tvl_usd,omitempty"`

	Amount          string `json:"amount,omitempty"`
	AmountBaseUnits string `json:"amount_base_units,omitempty"`
	Recipient       string `json:"recipient,omitempty"`

	Collection  string `json:"collection,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	URI         string `json:"uri,omitempty"`

	// DryRun returns the unsigned payload even when a submitter is configured.
	DryRun bool `json:"dry_run,omitempty"`
}

// Merge fills fields that are empty in p from other. Fields already set in
// p are kept.
func (p Params) Merge(other Params) Params {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return a
		}
		return b
	}
	p.Text = pick(p.Text, other.Text)
	p.Action = pick(p.Action, other.Action)
	p.Protocol = pick(p.Protocol, other.Protocol)
	p.Chain = pick(p.Chain, other.Chain)
	p.Token = pick(p.Token, other.Token)
	p.Category = pick(p.Category, other.Category)
	p.Amount = pick(p.Amount, other.Amount)
	p.AmountBaseUnits = pick(p.AmountBaseUnits, other.AmountBaseUnits)
	p.Recipient = pick(p.Recipient, other.Recipient)
	p.Collection = pick(p.Collection, other.Collection)
	p.Name = pick(p.Name, other.Name)
	p.Description = pick(p.Description, other.Description)
	p.URI = pick(p.URI, other.URI)
	if len(p.Protocols) == 0 {
		p.Protocols = other.Protocols
	}
	if p.Limit <= 0 {
		p.Limit = other.Limit
	}
	if p.At == nil {
		p.At = other.At
	}
	if p.MinTVLUSD <= 0 {
		p.MinTVLUSD = other.MinTVLUSD
	}
	p.DryRun = p.DryRun || other.DryRun
	return p
}

// chainChoice is a resolved chain. Explicit is false when the value is the
// configured default rather than something the user named.
type chainChoice struct {
	Value    string
	Explicit bool
}

func (s *Service) protocol(p Params) string {
	if v := strings.TrimSpace(p.Protocol); v != "" {
		return s.norm.Protocol(v)
	}
	if res := s.ex.Protocol(p.Text); res.Found {
		return res.Value
	}
	return ""
}

func (s *Service) protocols(p Params) []string {
	if len(p.Protocols) > 0 {
		out := make([]string, 0, len(p.Protocols))
		seen := map[string]struct{}{}
		for _, raw := range p.Protocols {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			slug := s.norm.Protocol(raw)
			if _, dup := seen[slug]; dup {
				continue
			}
			seen[slug] = struct{}{}
			out = append(out, slug)
		}
		return out
	}
	return s.ex.Protocols(p.Text)
}

func (s *Service) chain(p Params) chainChoice {
	if v := strings.TrimSpace(p.Chain); v != "" {
		return chainChoice{Value: s.norm.Chain(v), Explicit: true}
	}
	res := s.ex.Chain(p.Text)
	return chainChoice{Value: res.Value, Explicit: res.Found}
}

func (s *Service) limit(p Params) int {
	if p.Limit > 0 {
		return extract.ClampLimit(p.Limit)
	}
	return s.ex.Limit(p.Text)
}

func (s *Service) at(p Params) (time.Time, bool) {
	if p.At != nil && !p.At.IsZero() {
		return p.At.UTC(), true
	}
	return s.ex.Timestamp(p.Text)
}

// token returns the canonical token identifier named by p.
func (s *Service) token(p Params) string {
	if v := strings.TrimSpace(p.Token); v != "" {
		return s.norm.Token(v)
	}
	if res := s.ex.Token(p.Text); res.Found {
		return res.Value
	}
	return ""
}

// tokenSymbol turns a token reference into the ticker that market data
// sources index by.
func tokenSymbol(ref string) string {
	ref = strings.TrimSpace(ref)
	if info, ok := registry.TokenByID(ref); ok {
		return info.Symbol
	}
	if i := strings.LastIndex(ref, "::"); i >= 0 {
		return ref[i+2:]
	}
	return strings.TrimPrefix(ref, "$")
}

func (s *Service) supported(c lookup.Category, n int) []string {
	table, ok := s.ex.Tables().For(c)
	if !ok {
		return nil
	}
	all := table.Canonicals()
	if c == lookup.CategoryToken {
		all = nil
		for _, e := range table.Entries() {
			sym := tokenSymbol(e.Canonical)
			if !contains(all, sym) {
				all = append(all, sym)
			}
		}
	}
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
