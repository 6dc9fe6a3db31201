package defillama

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/payload"
	"github.com/ggonzalez94/defi-agent/internal/providers"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

type Client struct {
	http       *httpx.Client
	apiBase    string
	yieldsBase string
	now        func() time.Time
}

func New(httpClient *httpx.Client) *Client {
	return &Client{
		http:       httpClient,
		apiBase:    registry.DefiLlamaAPIBase,
		yieldsBase: registry.DefiLlamaYieldsBase,
		now:        time.Now,
	}
}

// WithBaseURLs overrides the API and yields hosts. Empty values keep the
// current setting.
func (c *Client) WithBaseURLs(apiBase, yieldsBase string) *Client {
	if v := strings.TrimRight(strings.TrimSpace(apiBase), "/"); v != "" {
		c.apiBase = v
	}
	if v := strings.TrimRight(strings.TrimSpace(yieldsBase), "/"); v != "" {
		c.yieldsBase = v
	}
	return c
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "defillama",
		Type:        "market+yields",
		RequiresKey: false,
		Capabilities: []string{
			"chains.top",
			"chains.tvl",
			"protocols.top",
			"protocols.tvl",
			"yield.pools",
		},
		BaseURL: c.apiBase,
	}
}

func (c *Client) ChainsEndpoint() string { return c.apiBase + "/v2/chains" }
func (c *Client) ProtocolsEndpoint() string { return c.apiBase + "/protocols" }
func (c *Client) PoolsEndpoint() string { return c.yieldsBase + "/pools" }
func (c *Client) ProtocolEndpoint(slug string) string {
	return c.apiBase + "/protocol/" + url.PathEscape(slug)
}

type chainResp struct {
	Name string  `json:"name"`
	TVL  float64 `json:"tvl"`
}

func (c *Client) getChains(ctx context.Context) ([]chainResp, error) {
	var resp []chainResp
	if err := c.http.GetJSON(ctx, c.ChainsEndpoint(), payload.Array(), &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ChainsTop(ctx context.Context, limit int) ([]model.ChainTVL, error) {
	resp, err := c.getChains(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(resp, func(i, j int) bool {
		return resp[i].TVL > resp[j].TVL
	})
	if limit <= 0 || limit > len(resp) {
		limit = len(resp)
	}
	out := make([]model.ChainTVL, 0, limit)
	for i := 0; i < limit; i++ {
		item := resp[i]
		out = append(out, model.ChainTVL{Rank: i + 1, Chain: item.Name, TVLUSD: item.TVL})
	}
	return out, nil
}

// ChainTVL returns the current TVL of one chain, matched by display name.
func (c *Client) ChainTVL(ctx context.Context, chain string) (model.ChainTVL, error) {
	resp, err := c.getChains(ctx)
	if err != nil {
		return model.ChainTVL{}, err
	}
	for _, item := range resp {
		if matchesChain(item.Name, chain) {
			return model.ChainTVL{Chain: item.Name, TVLUSD: item.TVL}, nil
		}
	}
	return model.ChainTVL{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("no TVL data for chain %s", chain))
}

type protocolResp struct {
	Name      string             `json:"name"`
	Slug      string             `json:"slug"`
	Category  string             `json:"category"`
	TVL       *float64           `json:"tvl"`
	Chains    []string           `json:"chains"`
	ChainTVLs map[string]float64 `json:"chainTvls"`
}

// ProtocolsTop ranks protocols by TVL. With a chain, only protocols deployed
// there are ranked, by their TVL on that chain.
func (c *Client) ProtocolsTop(ctx context.Context, chain, category string, limit int) ([]model.ProtocolTVL, error) {
	var resp []protocolResp
	if err := c.http.GetJSON(ctx, c.ProtocolsEndpoint(), payload.Array(), &resp); err != nil {
		return nil, err
	}

	normCategory := strings.ToLower(strings.TrimSpace(category))
	filtered := make([]model.ProtocolTVL, 0, len(resp))
	for _, p := range resp {
		if normCategory != "" && strings.ToLower(p.Category) != normCategory {
			continue
		}
		tvl := numOrZero(p.TVL)
		if chain != "" {
			v, ok := chainValue(p.ChainTVLs, chain)
			if !ok {
				continue
			}
			tvl = v
		}
		filtered = append(filtered, model.ProtocolTVL{
			Protocol: p.Slug,
			Name:     p.Name,
			Category: p.Category,
			Chain:    chain,
			TVLUSD:   tvl,
		})
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].TVLUSD > filtered[j].TVLUSD
	})
	if limit <= 0 || limit > len(filtered) {
		limit = len(filtered)
	}
	out := filtered[:limit]
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

type tvlPoint struct {
	Date              float64 `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

type protocolDetailResp struct {
	Name             string             `json:"name"`
	Category         string             `json:"category"`
	TVL              []tvlPoint         `json:"tvl"`
	CurrentChainTVLs map[string]float64 `json:"currentChainTvls"`
	ChainTVLs        map[string]struct {
		TVL []tvlPoint `json:"tvl"`
	} `json:"chainTvls"`
}

// Protocol fetches the detail record for one protocol slug.
func (c *Client) Protocol(ctx context.Context, slug string) (providers.ProtocolDetail, error) {
	var resp protocolDetailResp
	if err := c.http.GetJSON(ctx, c.ProtocolEndpoint(slug), payload.ObjectWithArray("tvl"), &resp); err != nil {
		if cErr, ok := clierr.As(err); ok && cErr.Code == clierr.CodeNotFound {
			return providers.ProtocolDetail{}, clierr.New(clierr.CodeNotFound, fmt.Sprintf("protocol %s is not listed", slug))
		}
		return providers.ProtocolDetail{}, err
	}

	detail := providers.ProtocolDetail{
		Slug:          slug,
		Name:          resp.Name,
		Category:      resp.Category,
		CurrentChains: map[string]float64{},
		Series:        toSeries(resp.TVL),
		ChainSeries:   map[string][]providers.TVLPoint{},
	}
	for chain, v := range resp.CurrentChainTVLs {
		if isAggregateKey(chain) {
			continue
		}
		detail.CurrentChains[chain] = v
	}
	for chain, series := range resp.ChainTVLs {
		if isAggregateKey(chain) {
			continue
		}
		detail.ChainSeries[chain] = toSeries(series.TVL)
	}
	return detail, nil
}

func toSeries(points []tvlPoint) []providers.TVLPoint {
	out := make([]providers.TVLPoint, 0, len(points))
	for _, p := range points {
		out = append(out, providers.TVLPoint{
			Date:   time.Unix(int64(p.Date), 0).UTC(),
			TVLUSD: p.TotalLiquidityUSD,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Keys such as "Ethereum-staking" or "borrowed" are not chains.
func isAggregateKey(key string) bool {
	if strings.Contains(key, "-") {
		return true
	}
	switch strings.ToLower(key) {
	case "borrowed", "staking", "pool2", "vesting", "offers", "treasury", "doublecounted", "liquidstaking", "dcandlsoverlap":
		return true
	}
	return false
}

type poolsEnvelope struct {
	Status string      `json:"status"`
	Data   []poolEntry `json:"data"`
}

type poolEntry struct {
	Pool      string   `json:"pool"`
	Chain     string   `json:"chain"`
	Project   string   `json:"project"`
	Symbol    string   `json:"symbol"`
	APYBase   *float64 `json:"apyBase"`
	APYReward *float64 `json:"apyReward"`
	APY       *float64 `json:"apy"`
	TVLUSD    *float64 `json:"tvlUsd"`
}

// Pools lists yield pools, largest TVL first.
func (c *Client) Pools(ctx context.Context, req providers.PoolRequest) ([]model.Pool, error) {
	var env poolsEnvelope
	if err := c.http.GetJSON(ctx, c.PoolsEndpoint(), payload.ObjectWithArray("data"), &env); err != nil {
		return nil, err
	}

	out := make([]model.Pool, 0)
	for _, p := range env.Data {
		if req.Chain != "" && !matchesChain(p.Chain, req.Chain) {
			continue
		}
		if req.Project != "" && !matchesProject(p.Project, req.Project) {
			continue
		}
		if !matchesAssetSymbol(p.Symbol, req.Symbol) {
			continue
		}
		tvl := numOrZero(p.TVLUSD)
		if tvl < req.MinTVLUSD {
			continue
		}
		out = append(out, model.Pool{
			PoolID:    p.Pool,
			Project:   p.Project,
			Chain:     p.Chain,
			Symbol:    p.Symbol,
			TVLUSD:    tvl,
			APY:       choosePositive(numOrZero(p.APY), numOrZero(p.APYBase)+numOrZero(p.APYReward)),
			APYBase:   numOrZero(p.APYBase),
			APYReward: numOrZero(p.APYReward),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TVLUSD != out[j].TVLUSD {
			return out[i].TVLUSD > out[j].TVLUSD
		}
		return out[i].PoolID < out[j].PoolID
	})
	if req.Limit > 0 && req.Limit < len(out) {
		out = out[:req.Limit]
	}
	return out, nil
}

func chainValue(values map[string]float64, chain string) (float64, bool) {
	for k, v := range values {
		if matchesChain(k, chain) {
			return v, true
		}
	}
	return 0, false
}

func matchesChain(input, chain string) bool {
	normInput := strings.ToLower(strings.TrimSpace(input))
	if normInput == "" {
		return false
	}
	normChain := strings.ToLower(strings.TrimSpace(chain))
	if normInput == normChain {
		return true
	}
	return strings.ReplaceAll(normInput, " ", "-") == strings.ReplaceAll(normChain, " ", "-")
}

// matchesProject accepts versioned slugs of the same project, so "uniswap"
// matches "uniswap-v3" pools and "thala" matches "thala-cl".
func matchesProject(project, want string) bool {
	project = strings.ToLower(strings.TrimSpace(project))
	want = strings.ToLower(strings.TrimSpace(want))
	if project == want {
		return true
	}
	return strings.HasPrefix(project, want+"-") || strings.HasPrefix(want, project+"-")
}

func matchesAssetSymbol(symbolRaw string, expected string) bool {
	if strings.TrimSpace(expected) == "" {
		return true
	}
	symbolRaw = strings.ToUpper(strings.TrimSpace(symbolRaw))
	expected = strings.ToUpper(strings.TrimSpace(expected))
	for _, part := range strings.Split(symbolRaw, "-") {
		if strings.TrimSpace(part) == expected {
			return true
		}
	}
	for _, part := range strings.Split(symbolRaw, "/") {
		if strings.TrimSpace(part) == expected {
			return true
		}
	}
	return symbolRaw == expected
}

func numOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}

func choosePositive(primary, fallback float64) float64 {
	if primary > 0 {
		return primary
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}
