package providers

import (
	"context"
	"strings"
	"time"

	"github.com/ggonzalez94/defi-agent/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

type MarketDataProvider interface {
	Provider
	ChainsTop(ctx context.Context, limit int) ([]model.ChainTVL, error)
	ChainTVL(ctx context.Context, chain string) (model.ChainTVL, error)
	ProtocolsTop(ctx context.Context, chain, category string, limit int) ([]model.ProtocolTVL, error)
	Protocol(ctx context.Context, slug string) (ProtocolDetail, error)
}

type PoolRequest struct {
	Chain     string
	Project   string
	Symbol    string
	MinTVLUSD float64
	Limit     int
}

type YieldProvider interface {
	Provider
	Pools(ctx context.Context, req PoolRequest) ([]model.Pool, error)
}

type PriceProvider interface {
	Provider
	Price(ctx context.Context, symbol string) (model.Price, error)
}

type TVLPoint struct {
	Date   time.Time
	TVLUSD float64
}

// ProtocolDetail is the per-protocol TVL record with chain breakdown and
// daily history, oldest point first.
type ProtocolDetail struct {
	Slug          string
	Name          string
	Category      string
	CurrentChains map[string]float64
	Series        []TVLPoint
	ChainSeries   map[string][]TVLPoint
}

// Total is the latest total TVL across chains.
func (d ProtocolDetail) Total() float64 {
	if n := len(d.Series); n > 0 {
		return d.Series[n-1].TVLUSD
	}
	var sum float64
	for _, v := range d.CurrentChains {
		sum += v
	}
	return sum
}

// OnChain returns the current TVL on chain, matched case-insensitively.
func (d ProtocolDetail) OnChain(chain string) (float64, string, bool) {
	for k, v := range d.CurrentChains {
		if strings.EqualFold(k, chain) {
			return v, k, true
		}
	}
	return 0, "", false
}

// At returns the last data point on or before ts. An empty chain selects
// the total series.
func (d ProtocolDetail) At(ts time.Time, chain string) (TVLPoint, bool) {
	series := d.Series
	if chain != "" {
		series = nil
		for k, s := range d.ChainSeries {
			if strings.EqualFold(k, chain) {
				series = s
				break
			}
		}
	}
	var found TVLPoint
	ok := false
	for _, p := range series {
		if p.Date.After(ts) {
			break
		}
		found, ok = p, true
	}
	return found, ok
}
