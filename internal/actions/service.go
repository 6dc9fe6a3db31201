// Package actions answers agent requests: it resolves parameters from text
// and explicit arguments, calls one collaborator and wraps the outcome in a
// model.Response.
package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-agent/internal/assemble"
	"github.com/ggonzalez94/defi-agent/internal/chain/aptos"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/extract"
	"github.com/ggonzalez94/defi-agent/internal/id"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/providers"
)

// Deps are the collaborators a Service calls. Submitter is optional; when
// it is nil transfer and mint actions return unsigned payloads.
type Deps struct {
	Market    providers.MarketDataProvider
	Yields    providers.YieldProvider
	Prices    providers.PriceProvider
	Submitter aptos.Submitter
	Extractor *extract.Extractor
	Logger    logrus.FieldLogger
}

type Service struct {
	market    providers.MarketDataProvider
	yields    providers.YieldProvider
	prices    providers.PriceProvider
	submitter aptos.Submitter
	ex        *extract.Extractor
	norm      *id.Normalizer
	classify  *intent.Classifier
	log       logrus.FieldLogger
}

func New(d Deps) *Service {
	log := d.Logger
	if log == nil {
		log = logging.Discard()
	}
	ex := d.Extractor
	if ex == nil {
		ex = extract.New(nil, extract.WithLogger(log))
	}
	return &Service{
		market:    d.Market,
		yields:    d.Yields,
		prices:    d.Prices,
		submitter: d.Submitter,
		ex:        ex,
		norm:      id.NewNormalizer(ex.Tables(), log),
		classify:  intent.NewClassifier(ex),
		log:       log,
	}
}

// Reply is the type-erased outcome of Handle.
type Reply struct {
	Action   intent.Action       `json:"action"`
	Response model.Response[any] `json:"response"`
}

// Resolve picks the action for p: an explicit Action wins, otherwise the
// text is classified.
func (s *Service) Resolve(p Params) (intent.Action, error) {
	if strings.TrimSpace(p.Action) != "" {
		a, ok := intent.Parse(p.Action)
		if !ok {
			return intent.ActionUnknown, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q (supported: %s)", p.Action, actionList()))
		}
		return a, nil
	}
	if strings.TrimSpace(p.Text) == "" {
		return intent.ActionUnknown, assemble.MissingParam("text")
	}
	m, ok := s.classify.Classify(p.Text)
	if !ok {
		return intent.ActionUnknown, clierr.New(clierr.CodeUsage, fmt.Sprintf("could not tell which action the request needs (supported: %s)", actionList()))
	}
	s.log.WithFields(logrus.Fields{"action": m.Action, "keyword": m.Keyword, "confidence": m.Confidence}).Debug("classified request")
	return m.Action, nil
}

// Handle resolves the action for p and runs it.
func (s *Service) Handle(ctx context.Context, p Params) Reply {
	action, err := s.Resolve(p)
	if err != nil {
		resp := assemble.Failure[any](s.log, assemble.Op{Action: "resolve", Params: map[string]any{"text": p.Text, "action": p.Action}}, err)
		return Reply{Action: intent.ActionUnknown, Response: resp}
	}
	return Reply{Action: action, Response: s.Run(ctx, action, p)}
}

// Run executes one action with the given params.
func (s *Service) Run(ctx context.Context, action intent.Action, p Params) model.Response[any] {
	switch action {
	case intent.ActionProtocolTVL:
		return s.ProtocolTVL(ctx, p).Erase()
	case intent.ActionChainTVL:
		return s.ChainTVL(ctx, p).Erase()
	case intent.ActionTopProtocols:
		return s.TopProtocols(ctx, p).Erase()
	case intent.ActionTopChains:
		return s.TopChains(ctx, p).Erase()
	case intent.ActionCompareProtocols:
		return s.CompareProtocols(ctx, p).Erase()
	case intent.ActionPools:
		return s.Pools(ctx, p).Erase()
	case intent.ActionPrice:
		return s.Price(ctx, p).Erase()
	case intent.ActionTransfer:
		return s.Transfer(ctx, p).Erase()
	case intent.ActionMintNFT:
		return s.MintNFT(ctx, p).Erase()
	default:
		err := clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q (supported: %s)", action, actionList()))
		return assemble.Failure[any](s.log, assemble.Op{Action: string(action)}, err)
	}
}

func actionList() string {
	names := make([]string, 0, len(intent.All))
	for _, a := range intent.All {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func unavailable(what string) error {
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("%s provider is not configured", what))
}

// Catalog describes every action for listings and tool registration.
func Catalog() []model.ActionInfo {
	return []model.ActionInfo{
		{
			Name:        string(intent.ActionProtocolTVL),
			Description: "Current or historical TVL of one protocol, optionally on one chain",
			Params:      []string{"protocol", "chain", "at"},
			Examples:    []string{"What's Uniswap's TVL on Arbitrum?", "Show me Thala's TVL", "aave tvl 2 weeks ago"},
		},
		{
			Name:        string(intent.ActionChainTVL),
			Description: "Current TVL of one chain",
			Params:      []string{"chain"},
			Examples:    []string{"total value locked on Aptos"},
		},
		{
			Name:        string(intent.ActionTopProtocols),
			Description: "Protocols ranked by TVL on a chain",
			Params:      []string{"chain", "category", "limit"},
			Examples:    []string{"Show top 10 protocols on Optimism"},
		},
		{
			Name:        string(intent.ActionTopChains),
			Description: "Chains ranked by TVL",
			Params:      []string{"limit"},
			Examples:    []string{"top 5 chains"},
		},
		{
			Name:        string(intent.ActionCompareProtocols),
			Description: "Side by side TVL of two or more protocols",
			Params:      []string{"protocols", "chain"},
			Examples:    []string{"Compare Aave vs Compound", "compare thala, joule and aries"},
		},
		{
			Name:        string(intent.ActionPools),
			Description: "Yield pools ranked by TVL, filtered by chain, protocol and token",
			Params:      []string{"chain", "protocol", "token", "min_tvl_usd", "limit"},
			Examples:    []string{"best USDC yield on aptos", "top 3 pools for thala"},
		},
		{
			Name:        string(intent.ActionPrice),
			Description: "Latest oracle price of a token in USD",
			Params:      []string{"token"},
			Examples:    []string{"What's the price of APT?"},
		},
		{
			Name:        string(intent.ActionTransfer),
			Description: "Transfer a coin or fungible asset to an address",
			Params:      []string{"token", "amount", "amount_base_units", "recipient", "dry_run"},
			Examples:    []string{"Send 1.5 APT to 0x1b2c..."},
		},
		{
			Name:        string(intent.ActionMintNFT),
			Description: "Mint a digital asset into an existing collection",
			Params:      []string{"collection", "name", "description", "uri", "dry_run"},
			Examples:    []string{`Mint an NFT called "Sunset" in collection "Art"`},
		},
	}
}
