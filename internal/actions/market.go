package actions

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ggonzalez94/defi-agent/internal/assemble"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/extract"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/providers"
)

const dateLayout = "2006-01-02"

// ProtocolTVL returns the TVL of one protocol. When the chain came from the
// configured default and the protocol is not deployed there, the total
// across chains is returned with a note; a chain the user named must exist.
func (s *Service) ProtocolTVL(ctx context.Context, p Params) model.Response[model.ProtocolTVL] {
	slug := s.protocol(p)
	chain := s.chain(p)
	ts, historical := s.at(p)
	op := assemble.Op{
		Action:   "protocol_tvl",
		Endpoint: "/protocol/" + slug,
		Params:   map[string]any{"protocol": slug, "chain": chain.Value, "text": p.Text},
	}
	if slug == "" {
		return assemble.Failure[model.ProtocolTVL](s.log, op, assemble.MissingParam("protocol", s.supported(lookup.CategoryProtocol, 10)...))
	}
	if s.market == nil {
		return assemble.Failure[model.ProtocolTVL](s.log, op, unavailable("market data"))
	}

	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.ProtocolTVL, error) {
		detail, err := s.market.Protocol(ctx, slug)
		if err != nil {
			return model.ProtocolTVL{}, err
		}
		out := model.ProtocolTVL{Protocol: slug, Name: detail.Name, Category: detail.Category}
		label := displayName(detail)

		value, key, onChain := detail.OnChain(chain.Value)
		if !onChain && chain.Explicit {
			return model.ProtocolTVL{}, assemble.NotFound("%s has no TVL on %s", label, chain.Value)
		}
		if !onChain {
			out.Note = fmt.Sprintf("%s is not deployed on %s; showing total TVL across chains", label, chain.Value)
		}

		if historical {
			point, ok := detail.At(ts, key)
			if !ok {
				return model.ProtocolTVL{}, assemble.NotFound("no TVL data for %s on or before %s", label, ts.Format(dateLayout))
			}
			out.Chain = key
			out.TVLUSD = point.TVLUSD
			out.AsOf = point.Date.UTC().Format(dateLayout)
			return out, nil
		}
		if onChain {
			out.Chain = key
			out.TVLUSD = value
			return out, nil
		}
		out.TVLUSD = detail.Total()
		return out, nil
	})
}

func displayName(d providers.ProtocolDetail) string {
	if strings.TrimSpace(d.Name) != "" {
		return d.Name
	}
	return d.Slug
}

func (s *Service) ChainTVL(ctx context.Context, p Params) model.Response[model.ChainTVL] {
	chain := s.chain(p)
	op := assemble.Op{Action: "chain_tvl", Endpoint: "/v2/chains", Params: map[string]any{"chain": chain.Value, "text": p.Text}}
	if chain.Value == "" {
		return assemble.Failure[model.ChainTVL](s.log, op, assemble.MissingParam("chain", s.supported(lookup.CategoryChain, 10)...))
	}
	if s.market == nil {
		return assemble.Failure[model.ChainTVL](s.log, op, unavailable("market data"))
	}
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.ChainTVL, error) {
		return s.market.ChainTVL(ctx, chain.Value)
	})
}

func (s *Service) TopProtocols(ctx context.Context, p Params) model.Response[[]model.ProtocolTVL] {
	chain := s.chain(p)
	limit := s.limit(p)
	op := assemble.Op{
		Action:   "top_protocols",
		Endpoint: "/protocols",
		Params:   map[string]any{"chain": chain.Value, "category": p.Category, "limit": limit},
	}
	if s.market == nil {
		return assemble.Failure[[]model.ProtocolTVL](s.log, op, unavailable("market data"))
	}
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) ([]model.ProtocolTVL, error) {
		return s.market.ProtocolsTop(ctx, chain.Value, p.Category, limit)
	}, assemble.NonEmpty[model.ProtocolTVL]("protocols on "+orAll(chain.Value)))
}

func (s *Service) TopChains(ctx context.Context, p Params) model.Response[[]model.ChainTVL] {
	limit := s.limit(p)
	op := assemble.Op{Action: "top_chains", Endpoint: "/v2/chains", Params: map[string]any{"limit": limit}}
	if s.market == nil {
		return assemble.Failure[[]model.ChainTVL](s.log, op, unavailable("market data"))
	}
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) ([]model.ChainTVL, error) {
		return s.market.ChainsTop(ctx, limit)
	}, assemble.NonEmpty[model.ChainTVL]("chains"))
}

func orAll(chain string) string {
	if chain == "" {
		return "any chain"
	}
	return chain
}

// CompareProtocols fetches each protocol in turn. Protocols that are not
// listed, or not deployed on a chain the user named, are reported in
// Missing instead of failing the whole comparison.
func (s *Service) CompareProtocols(ctx context.Context, p Params) model.Response[model.ProtocolComparison] {
	slugs := s.protocols(p)
	chain := s.chain(p)
	op := assemble.Op{
		Action:   "compare_protocols",
		Endpoint: "/protocol/{slug}",
		Params:   map[string]any{"protocols": strings.Join(slugs, ","), "chain": chain.Value},
	}
	if len(slugs) < 2 {
		return assemble.Failure[model.ProtocolComparison](s.log, op, assemble.MissingParam("protocols (at least two)", s.supported(lookup.CategoryProtocol, 10)...))
	}
	if s.market == nil {
		return assemble.Failure[model.ProtocolComparison](s.log, op, unavailable("market data"))
	}

	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.ProtocolComparison, error) {
		out := model.ProtocolComparison{}
		if chain.Explicit {
			out.Chain = chain.Value
		}
		for _, slug := range slugs {
			detail, err := s.market.Protocol(ctx, slug)
			if err != nil {
				if cErr, ok := clierr.As(err); ok && cErr.Code == clierr.CodeNotFound {
					out.Missing = append(out.Missing, slug)
					continue
				}
				return model.ProtocolComparison{}, err
			}
			row := model.ProtocolTVL{Protocol: slug, Name: detail.Name, Category: detail.Category, TVLUSD: detail.Total()}
			if chain.Explicit {
				value, key, ok := detail.OnChain(chain.Value)
				if !ok {
					out.Missing = append(out.Missing, slug)
					continue
				}
				row.Chain, row.TVLUSD = key, value
			}
			out.Protocols = append(out.Protocols, row)
		}
		sort.SliceStable(out.Protocols, func(i, j int) bool {
			return out.Protocols[i].TVLUSD > out.Protocols[j].TVLUSD
		})
		for i := range out.Protocols {
			out.Protocols[i].Rank = i + 1
		}
		return out, nil
	}, func(c model.ProtocolComparison) error {
		if len(c.Protocols) == 0 {
			return assemble.NotFound("none of %s have TVL data", strings.Join(slugs, ", "))
		}
		return nil
	})
}

// Pools lists yield pools. The protocol and token filters are optional.
func (s *Service) Pools(ctx context.Context, p Params) model.Response[[]model.Pool] {
	req := providers.PoolRequest{
		Chain:     s.chain(p).Value,
		Project:   s.protocol(p),
		MinTVLUSD: p.MinTVLUSD,
		Limit:     s.limit(p),
	}
	if ref := s.token(p); ref != "" {
		req.Symbol = tokenSymbol(ref)
	}
	op := assemble.Op{
		Action:   "pools",
		Endpoint: "/pools",
		Params:   map[string]any{"chain": req.Chain, "project": req.Project, "symbol": req.Symbol, "limit": req.Limit},
	}
	if s.yields == nil {
		return assemble.Failure[[]model.Pool](s.log, op, unavailable("yield"))
	}
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) ([]model.Pool, error) {
		return s.yields.Pools(ctx, req)
	}, assemble.NonEmpty[model.Pool]("pools matching the filters"))
}

var priceSymbolPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:price of|price for|how much is|worth of|value of)\s+(?:the\s+|a\s+|one\s+|1\s+)?\$?([a-z][a-z0-9]{1,11})\b`),
	regexp.MustCompile(`\$?\b([a-z][a-z0-9]{1,11})\s+(?:price|worth|trading)\b`),
}

var priceStopWords = map[string]struct{}{
	"the": {}, "current": {}, "token": {}, "coin": {}, "latest": {}, "what": {}, "whats": {},
}

// priceSymbol finds a ticker in text when it is not a known token alias.
func priceSymbol(text string) string {
	norm := extract.NormalizeText(text)
	for _, pattern := range priceSymbolPatterns {
		for _, m := range pattern.FindAllStringSubmatch(norm, -1) {
			if _, stop := priceStopWords[m[1]]; stop {
				continue
			}
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

func (s *Service) Price(ctx context.Context, p Params) model.Response[model.Price] {
	symbol := ""
	if ref := s.token(p); ref != "" {
		symbol = tokenSymbol(ref)
	} else {
		symbol = priceSymbol(p.Text)
	}
	op := assemble.Op{Action: "price", Endpoint: "/v2/updates/price/latest", Params: map[string]any{"symbol": symbol}}
	if symbol == "" {
		return assemble.Failure[model.Price](s.log, op, assemble.MissingParam("token", s.supported(lookup.CategoryToken, 10)...))
	}
	if s.prices == nil {
		return assemble.Failure[model.Price](s.log, op, unavailable("price"))
	}
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.Price, error) {
		return s.prices.Price(ctx, symbol)
	}, func(pr model.Price) error {
		if pr.PriceUSD <= 0 {
			return fmt.Errorf("non-positive price %v for %s", pr.PriceUSD, symbol)
		}
		return nil
	})
}
