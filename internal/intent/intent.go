// Package intent picks which action a message is asking for.
package intent

import (
	"strings"
	"unicode"

	"github.com/ggonzalez94/defi-agent/internal/extract"
)

type Action string

const (
	ActionProtocolTVL      Action = "protocol_tvl"
	ActionChainTVL         Action = "chain_tvl"
	ActionTopProtocols     Action = "top_protocols"
	ActionTopChains        Action = "top_chains"
	ActionCompareProtocols Action = "compare_protocols"
	ActionPools            Action = "pools"
	ActionPrice            Action = "price"
	ActionTransfer         Action = "transfer"
	ActionMintNFT          Action = "mint_nft"
	ActionUnknown          Action = ""
)

// All lists every action in a stable order.
var All = []Action{
	ActionProtocolTVL,
	ActionChainTVL,
	ActionTopProtocols,
	ActionTopChains,
	ActionCompareProtocols,
	ActionPools,
	ActionPrice,
	ActionTransfer,
	ActionMintNFT,
}

func Parse(s string) (Action, bool) {
	norm := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, a := range All {
		if a == norm {
			return a, true
		}
	}
	return ActionUnknown, false
}

type Match struct {
	Action     Action  `json:"action"`
	Confidence float64 `json:"confidence"`
	Keyword    string  `json:"keyword,omitempty"`
}

// rule maps keywords to an action. resolve, when set, may refine the action
// from the text or reject the match so later rules get a chance.
type rule struct {
	keywords   []string
	action     Action
	confidence float64
	resolve    func(text string) (Action, bool)
}

// Classifier is a keyword rule dictionary: rules are checked in order and
// the first rule with a keyword present in the text wins.
type Classifier struct {
	rules []rule
	ex    *extract.Extractor
}

func NewClassifier(ex *extract.Extractor) *Classifier {
	if ex == nil {
		ex = extract.New(nil)
	}
	c := &Classifier{ex: ex}
	c.rules = []rule{
		{
			keywords:   []string{"mint an nft", "mint a nft", "mint nft", "mint a token", "create an nft", "create nft", "mint"},
			action:     ActionMintNFT,
			confidence: 0.9,
		},
		{
			keywords:   []string{"transfer", "send", "pay"},
			action:     ActionTransfer,
			confidence: 0.85,
			resolve:    c.requireTransferDetails,
		},
		{
			keywords:   []string{"compare", "comparison", "vs", "versus"},
			action:     ActionCompareProtocols,
			confidence: 0.85,
			resolve:    c.requireProtocols(2),
		},
		{
			keywords:   []string{"pools", "pool", "yield", "yields", "apy", "apr", "farm", "farms"},
			action:     ActionPools,
			confidence: 0.8,
		},
		{
			keywords:   []string{"price", "worth", "how much is", "cost of", "trading at"},
			action:     ActionPrice,
			confidence: 0.8,
		},
		{
			keywords:   []string{"top chains", "largest chains", "biggest chains", "chains by tvl", "rank chains", "chain ranking"},
			action:     ActionTopChains,
			confidence: 0.8,
		},
		{
			keywords:   []string{"top protocols", "largest protocols", "biggest protocols", "best protocols", "leaderboard", "ranking", "top"},
			action:     ActionTopProtocols,
			confidence: 0.75,
		},
		{
			keywords:   []string{"tvl", "total value locked", "locked", "liquidity"},
			action:     ActionProtocolTVL,
			confidence: 0.75,
			resolve:    c.tvlTarget,
		},
	}
	return c
}

// Classify returns the best matching action. ok is false when no rule
// applies.
func (c *Classifier) Classify(text string) (Match, bool) {
	padded := " " + wordsOnly(extract.NormalizeText(text)) + " "
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if !strings.Contains(padded, " "+kw+" ") {
				continue
			}
			action := r.action
			if r.resolve != nil {
				resolved, ok := r.resolve(text)
				if !ok {
					break
				}
				action = resolved
			}
			return Match{Action: action, Confidence: r.confidence, Keyword: kw}, true
		}
	}
	return Match{Action: ActionUnknown}, false
}

// requireTransferDetails accepts "send"/"pay" only with a recipient address
// or an amount followed by a token, so "send me the top 5 chains" stays a
// market question.
func (c *Classifier) requireTransferDetails(text string) (Action, bool) {
	if _, ok := c.ex.Recipient(text); ok {
		return ActionTransfer, true
	}
	_, ok := c.ex.AmountToken(text)
	return ActionTransfer, ok
}

func (c *Classifier) requireProtocols(n int) func(string) (Action, bool) {
	return func(text string) (Action, bool) {
		return ActionCompareProtocols, len(c.ex.Protocols(text)) >= n
	}
}

func (c *Classifier) tvlTarget(text string) (Action, bool) {
	if c.ex.Protocol(text).Found {
		return ActionProtocolTVL, true
	}
	return ActionChainTVL, true
}

// wordsOnly replaces punctuation with spaces so keywords match whole words.
// Bare numbers are dropped, so "top 5 chains" matches "top chains".
func wordsOnly(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	words := strings.Fields(mapped)
	kept := words[:0]
	for _, w := range words {
		if strings.TrimFunc(w, unicode.IsDigit) != "" {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
