// Package pyth reads USD prices from the Pyth Hermes service.
package pyth

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/payload"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

const DefaultPriceTTL = 5 * time.Minute

type Client struct {
	http  *httpx.Client
	base  string
	cache *ristretto.Cache
	ttl   time.Duration
}

// New builds a client with a process-local price cache. ttl <= 0 selects
// DefaultPriceTTL.
func New(httpClient *httpx.Client, ttl time.Duration) (*Client, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "create price cache", err)
	}
	if ttl <= 0 {
		ttl = DefaultPriceTTL
	}
	return &Client{http: httpClient, base: registry.PythHermesBase, cache: cache, ttl: ttl}, nil
}

func (c *Client) WithBaseURL(base string) *Client {
	if v := strings.TrimRight(strings.TrimSpace(base), "/"); v != "" {
		c.base = v
	}
	return c
}

func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "pyth",
		Type:         "prices",
		RequiresKey:  false,
		Capabilities: []string{"price.latest"},
		BaseURL:      c.base,
	}
}

func (c *Client) FeedsEndpoint() string { return c.base + "/v2/price_feeds" }

func (c *Client) LatestEndpoint() string { return c.base + "/v2/updates/price/latest" }

type feedResp struct {
	ID         string `json:"id"`
	Attributes struct {
		Base          string `json:"base"`
		QuoteCurrency string `json:"quote_currency"`
		Symbol        string `json:"symbol"`
	} `json:"attributes"`
}

type latestResp struct {
	Parsed []struct {
		ID    string    `json:"id"`
		Price priceResp `json:"price"`
	} `json:"parsed"`
}

type priceResp struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

// CacheKey is the cache key for a ticker symbol.
func CacheKey(symbol string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(strings.TrimSpace(symbol)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Price returns the latest USD price for symbol. Results are cached per
// symbol for the client TTL; a miss always goes to the network.
func (c *Client) Price(ctx context.Context, symbol string) (model.Price, error) {
	key := CacheKey(symbol)
	if key == "" {
		return model.Price{}, clierr.New(clierr.CodeUsage, "token symbol is required")
	}
	if v, ok := c.cache.Get(key); ok {
		if p, ok := v.(model.Price); ok {
			p.Cached = true
			return p, nil
		}
	}

	feedID, err := c.lookupFeed(ctx, key)
	if err != nil {
		return model.Price{}, err
	}

	q := url.Values{}
	q.Add("ids[]", feedID)
	var latest latestResp
	if err := c.http.GetJSON(ctx, c.LatestEndpoint()+"?"+q.Encode(), payload.ObjectWithArray("parsed"), &latest); err != nil {
		return model.Price{}, err
	}
	if len(latest.Parsed) == 0 {
		return model.Price{}, clierr.New(clierr.CodeDataFormat, "price update contained no parsed prices")
	}
	price, err := scale(latest.Parsed[0].Price.Price, latest.Parsed[0].Price.Expo)
	if err != nil {
		return model.Price{}, clierr.Wrap(clierr.CodeDataFormat, "parse price", err)
	}
	conf, err := scale(latest.Parsed[0].Price.Conf, latest.Parsed[0].Price.Expo)
	if err != nil {
		return model.Price{}, clierr.Wrap(clierr.CodeDataFormat, "parse confidence", err)
	}

	out := model.Price{
		Symbol:      key,
		FeedID:      feedID,
		PriceUSD:    price,
		Confidence:  conf,
		PublishTime: time.Unix(latest.Parsed[0].Price.PublishTime, 0).UTC().Format(time.RFC3339),
	}
	c.cache.SetWithTTL(key, out, 1, c.ttl)
	c.cache.Wait()
	return out, nil
}

func (c *Client) lookupFeed(ctx context.Context, symbol string) (string, error) {
	q := url.Values{}
	q.Set("query", symbol)
	q.Set("asset_type", "crypto")
	var feeds []feedResp
	if err := c.http.GetJSON(ctx, c.FeedsEndpoint()+"?"+q.Encode(), payload.Array(), &feeds); err != nil {
		return "", err
	}
	want := "CRYPTO." + symbol + "/USD"
	for _, f := range feeds {
		if strings.EqualFold(f.Attributes.Base, symbol) && strings.EqualFold(f.Attributes.QuoteCurrency, "USD") {
			return f.ID, nil
		}
	}
	for _, f := range feeds {
		if strings.EqualFold(f.Attributes.Symbol, want) {
			return f.ID, nil
		}
	}
	return "", clierr.New(clierr.CodeNotFound, fmt.Sprintf("no USD price feed for %s", symbol))
}

func scale(raw string, expo int) (float64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, err
	}
	return float64(n) * math.Pow10(expo), nil
}
