package defillama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/providers"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(httpx.New(2 * time.Second)).WithBaseURLs(srv.URL, srv.URL)
}

func TestChainsTopSortsDescending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/chains", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[ {"name":"B","tvl":2}, {"name":"A","tvl":3} ]`))
	})
	c := newTestClient(t, mux)

	items, err := c.ChainsTop(context.Background(), 2)
	if err != nil {
		t.Fatalf("ChainsTop failed: %v", err)
	}
	if len(items) != 2 || items[0].Chain != "A" || items[0].Rank != 1 {
		t.Fatalf("unexpected ordering: %+v", items)
	}
}

func TestChainTVLMatchesDisplayName(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/chains", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"OP Mainnet","tvl":700},{"name":"Aptos","tvl":900}]`))
	})
	c := newTestClient(t, mux)

	got, err := c.ChainTVL(context.Background(), "op mainnet")
	if err != nil {
		t.Fatalf("ChainTVL failed: %v", err)
	}
	if got.Chain != "OP Mainnet" || got.TVLUSD != 700 {
		t.Fatalf("unexpected chain tvl: %+v", got)
	}

	_, err = c.ChainTVL(context.Background(), "Nowhere")
	if clierr.TagOf(err) != clierr.TagNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestChainsMalformedPayload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/chains", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chains":[]}`))
	})
	c := newTestClient(t, mux)

	_, err := c.ChainsTop(context.Background(), 5)
	if clierr.TagOf(err) != clierr.TagDataFormat {
		t.Fatalf("expected DATA_FORMAT_ERROR, got %v", err)
	}
}

func TestProtocolsTopByChain(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/protocols", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"name":"Uniswap V3","slug":"uniswap-v3","category":"Dexs","tvl":5000,"chainTvls":{"Ethereum":3000,"OP Mainnet":100}},
			{"name":"Velodrome","slug":"velodrome","category":"Dexs","tvl":400,"chainTvls":{"OP Mainnet":400}},
			{"name":"Aave V3","slug":"aave-v3","category":"Lending","tvl":9000,"chainTvls":{"Ethereum":9000}}
		]`))
	})
	c := newTestClient(t, mux)

	items, err := c.ProtocolsTop(context.Background(), "OP Mainnet", "", 10)
	if err != nil {
		t.Fatalf("ProtocolsTop failed: %v", err)
	}
	if len(items) != 2 || items[0].Protocol != "velodrome" || items[1].TVLUSD != 100 || items[1].Rank != 2 {
		t.Fatalf("unexpected chain ranking: %+v", items)
	}

	all, err := c.ProtocolsTop(context.Background(), "", "lending", 1)
	if err != nil {
		t.Fatalf("ProtocolsTop(all) failed: %v", err)
	}
	if len(all) != 1 || all[0].Protocol != "aave-v3" {
		t.Fatalf("unexpected category ranking: %+v", all)
	}
}

func TestProtocolDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/protocol/thala", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"name":"Thala",
			"category":"CDP",
			"tvl":[{"date":1717200000,"totalLiquidityUSD":100},{"date":1717286400,"totalLiquidityUSD":120}],
			"currentChainTvls":{"Aptos":120,"Aptos-staking":5,"staking":5},
			"chainTvls":{"Aptos":{"tvl":[{"date":1717200000,"totalLiquidityUSD":100},{"date":1717286400,"totalLiquidityUSD":120}]}}
		}`))
	})
	mux.HandleFunc("/protocol/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c := newTestClient(t, mux)

	detail, err := c.Protocol(context.Background(), "thala")
	if err != nil {
		t.Fatalf("Protocol failed: %v", err)
	}
	if detail.Total() != 120 || len(detail.CurrentChains) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if v, name, ok := detail.OnChain("aptos"); !ok || v != 120 || name != "Aptos" {
		t.Fatalf("unexpected chain value: %v %q %v", v, name, ok)
	}
	point, ok := detail.At(time.Unix(1717250000, 0), "Aptos")
	if !ok || point.TVLUSD != 100 {
		t.Fatalf("unexpected historical point: %+v %v", point, ok)
	}
	if _, ok := detail.At(time.Unix(1600000000, 0), ""); ok {
		t.Fatal("did not expect a point before the series starts")
	}

	_, err = c.Protocol(context.Background(), "ghost")
	if clierr.TagOf(err) != clierr.TagNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestPoolsFilters(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/pools", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"status":"success",
			"data":[
				{"pool":"p1","chain":"Aptos","project":"thala-cl","symbol":"APT-USDC","apy":5,"apyBase":4,"apyReward":1,"tvlUsd":1000000},
				{"pool":"p2","chain":"Aptos","project":"aries-markets","symbol":"USDC","apy":2,"tvlUsd":10000},
				{"pool":"p3","chain":"Ethereum","project":"thala-cl","symbol":"USDC","apy":9,"tvlUsd":90000000}
			]
		}`))
	})
	c := newTestClient(t, mux)

	got, err := c.Pools(context.Background(), providers.PoolRequest{Chain: "aptos", Symbol: "usdc", Limit: 5})
	if err != nil {
		t.Fatalf("Pools failed: %v", err)
	}
	if len(got) != 2 || got[0].PoolID != "p1" {
		t.Fatalf("unexpected pools: %+v", got)
	}

	got, err = c.Pools(context.Background(), providers.PoolRequest{Chain: "Aptos", Project: "thala"})
	if err != nil {
		t.Fatalf("Pools(project) failed: %v", err)
	}
	if len(got) != 1 || got[0].Project != "thala-cl" {
		t.Fatalf("unexpected project filter: %+v", got)
	}
}
