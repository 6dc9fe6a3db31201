package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/providers"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

const testRecipient = "0x1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f90a"

type fakeMarket struct {
	protocolCalls int
}

func (f *fakeMarket) Info() model.ProviderInfo {
	return model.ProviderInfo{Name: "fake-market", Type: "market"}
}

func (f *fakeMarket) ChainsTop(_ context.Context, limit int) ([]model.ChainTVL, error) {
	return []model.ChainTVL{{Rank: 1, Chain: "Ethereum", TVLUSD: 5e10}, {Rank: 2, Chain: "Solana", TVLUSD: 9e9}}[:min(limit, 2)], nil
}

func (f *fakeMarket) ChainTVL(_ context.Context, chain string) (model.ChainTVL, error) {
	return model.ChainTVL{Chain: chain, TVLUSD: 1e9}, nil
}

func (f *fakeMarket) ProtocolsTop(_ context.Context, chain, category string, limit int) ([]model.ProtocolTVL, error) {
	return []model.ProtocolTVL{{Rank: 1, Protocol: "thala", Name: "Thala", Chain: chain, TVLUSD: 2e8}}, nil
}

func (f *fakeMarket) Protocol(_ context.Context, slug string) (providers.ProtocolDetail, error) {
	f.protocolCalls++
	if slug != "uniswap" {
		return providers.ProtocolDetail{}, clierr.New(clierr.CodeNotFound, "protocol "+slug+" is not listed")
	}
	return providers.ProtocolDetail{
		Slug:          "uniswap",
		Name:          "Uniswap",
		CurrentChains: map[string]float64{"Arbitrum": 3e8, "Ethereum": 4e9},
		Series:        []providers.TVLPoint{{Date: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), TVLUSD: 4.3e9}},
	}, nil
}

type fakePrices struct{}

func (fakePrices) Info() model.ProviderInfo { return model.ProviderInfo{Name: "fake-prices"} }

func (fakePrices) Price(_ context.Context, symbol string) (model.Price, error) {
	return model.Price{Symbol: symbol, PriceUSD: 8.25, FeedID: "feed"}, nil
}

type replyEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Action   string `json:"action"`
		Response struct {
			Success bool                 `json:"success"`
			Result  json.RawMessage      `json:"result"`
			Error   *model.ResponseError `json:"error"`
		} `json:"response"`
	} `json:"data"`
	Warnings []string         `json:"warnings"`
	Error    *model.ErrorBody `json:"error"`
	Meta     struct {
		Command   string                 `json:"command"`
		RequestID string                 `json:"request_id"`
		Cache     model.CacheStatus      `json:"cache"`
		Providers []model.ProviderStatus `json:"providers"`
		Partial   bool                   `json:"partial"`
	} `json:"meta"`
}

// isolateEnv points config and cache lookups at temp dirs and returns the
// cache dir so several runs can share one cache.
func isolateEnv(t *testing.T) string {
	t.Helper()
	cacheDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", cacheDir)
	return cacheDir
}

func newTestState(market *fakeMarket) (*runtimeState, *bytes.Buffer, *bytes.Buffer) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	state := &runtimeState{
		runner: &Runner{
			stdout: stdout,
			stderr: stderr,
			logs:   io.Discard,
			now:    func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) },
		},
		marketProvider: market,
		yieldProvider:  nil,
		priceProvider:  fakePrices{},
	}
	return state, stdout, stderr
}

func decodeReplyEnvelope(t *testing.T, buf *bytes.Buffer) replyEnvelope {
	t.Helper()
	var env replyEnvelope
	if err := json.Unmarshal(buf.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope failed: %v output=%s", err, buf.String())
	}
	return env
}

func TestTrimRootPath(t *testing.T) {
	if got := trimRootPath("defi-agent protocols top"); got != "protocols top" {
		t.Fatalf("unexpected trim result: %s", got)
	}
	if got := trimRootPath("defi-agent"); got != "defi-agent" {
		t.Fatalf("unexpected trim result for root: %s", got)
	}
}

func TestActionTTL(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		action intent.Action
		params bool
		want   time.Duration
	}{
		{intent.ActionTransfer, false, 0},
		{intent.ActionMintNFT, false, 0},
		{intent.ActionPrice, false, priceTTL},
		{intent.ActionProtocolTVL, true, historicalTTL},
		{intent.ActionProtocolTVL, false, marketDataTTL},
		{intent.ActionTopChains, false, marketDataTTL},
	}
	for _, tc := range cases {
		p := actions.Params{}
		if tc.params {
			p.At = &at
		}
		if got := actionTTL(tc.action, p); got != tc.want {
			t.Fatalf("%s: expected ttl %s, got %s", tc.action, tc.want, got)
		}
	}
}

func TestShouldOpenCache(t *testing.T) {
	if shouldOpenCache("transfer") || shouldOpenCache("nft mint") || shouldOpenCache("version") {
		t.Fatal("did not expect transaction or metadata commands to open the cache")
	}
	if !shouldOpenCache("tvl") || !shouldOpenCache("ask") || !shouldOpenCache("cache stats") {
		t.Fatal("expected data commands to open the cache")
	}
}

func TestRunnerProvidersList(t *testing.T) {
	isolateEnv(t)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"providers", "list", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var out []model.ProviderInfo
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse output json: %v output=%s", err, stdout.String())
	}
	names := map[string]bool{}
	for _, info := range out {
		names[info.Name] = true
	}
	if !names["defillama"] || !names["pyth"] {
		t.Fatalf("expected defillama and pyth providers, got %+v", out)
	}
}

func TestRunnerErrorEnvelopeIgnoresResultsOnly(t *testing.T) {
	isolateEnv(t)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	code := r.Run([]string{"chains", "top", "--enable-commands", "protocols top", "--results-only"})
	if code != int(clierr.CodeBlocked) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeBlocked, code, stderr.String())
	}
	var env map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse error envelope: %v output=%s", err, stderr.String())
	}
	if env["success"] != false {
		t.Fatalf("expected success=false, got %v", env["success"])
	}
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "COMMAND_BLOCKED" {
		t.Fatalf("expected COMMAND_BLOCKED, got %v", errBody)
	}
}

func TestRunnerVersionBypassesAllowlist(t *testing.T) {
	isolateEnv(t)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	if code := r.Run([]string{"version", "--enable-commands", "price"}); code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) == "" {
		t.Fatal("expected version output")
	}
}

func TestAskProtocolTVLOnNamedChain(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"ask", "--no-cache", "What's Uniswap's TVL on Arbitrum?"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeReplyEnvelope(t, stdout)
	if !env.Success || env.Data.Action != string(intent.ActionProtocolTVL) {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var result model.ProtocolTVL
	if err := json.Unmarshal(env.Data.Response.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Chain != "Arbitrum" || result.TVLUSD != 3e8 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if env.Meta.Command != "ask" || env.Meta.RequestID == "" {
		t.Fatalf("unexpected meta: %+v", env.Meta)
	}
	if len(env.Meta.Providers) != 1 || env.Meta.Providers[0].Name != "fake-market" || env.Meta.Providers[0].Status != "ok" {
		t.Fatalf("unexpected provider status: %+v", env.Meta.Providers)
	}
	if env.Meta.Cache.Status != "bypass" && env.Meta.Cache.Status != "miss" {
		t.Fatalf("expected uncached result, got %+v", env.Meta.Cache)
	}
}

func TestAskDefaultChainFallbackWarns(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"ask", "--no-cache", "uniswap tvl"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeReplyEnvelope(t, stdout)
	if len(env.Warnings) != 1 || !strings.Contains(env.Warnings[0], "not deployed on "+registry.ChainAptos) {
		t.Fatalf("expected fallback note as warning, got %+v", env.Warnings)
	}
}

func TestAskMarkdownOutput(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"ask", "--markdown", "--no-cache", "top 2 chains"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	text := stdout.String()
	if !strings.Contains(text, "**Ethereum**") || !strings.Contains(text, "**Solana**") {
		t.Fatalf("expected markdown chain ranking, got %q", text)
	}
}

func TestAskUnclassifiableRequestIsInvalidParams(t *testing.T) {
	isolateEnv(t)
	state, _, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"ask", "--no-cache", "hello there"})
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected usage exit code, got %d stderr=%s", code, stderr.String())
	}
	var env struct {
		Success bool            `json:"success"`
		Data    []any           `json:"data"`
		Error   model.ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(stderr.Bytes(), &env); err != nil {
		t.Fatalf("decode error envelope: %v output=%s", err, stderr.String())
	}
	if env.Success || env.Error.Type != clierr.TagInvalidParams || env.Error.Code != int(clierr.CodeUsage) {
		t.Fatalf("unexpected error envelope: %+v", env)
	}
}

func TestActionErrorCarriesActionInMarkdown(t *testing.T) {
	isolateEnv(t)
	state, _, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"tvl", "--markdown", "--no-cache", "--protocol", "uniswap", "--chain", "sui"})
	if code != int(clierr.CodeNotFound) {
		t.Fatalf("expected not-found exit code, got %d stderr=%s", code, stderr.String())
	}
	if !strings.HasPrefix(stderr.String(), "Sorry, I couldn't find that") {
		t.Fatalf("expected markdown apology, got %q", stderr.String())
	}
}

func TestTVLCommandServesSecondRunFromCache(t *testing.T) {
	isolateEnv(t)
	market := &fakeMarket{}

	first, stdout, stderr := newTestState(market)
	if code := first.run([]string{"tvl", "--protocol", "uniswap", "--chain", "arbitrum"}); code != 0 {
		t.Fatalf("first run failed: %d stderr=%s", code, stderr.String())
	}
	if env := decodeReplyEnvelope(t, stdout); env.Meta.Cache.Status != "write" {
		t.Fatalf("expected cache write on first run, got %+v", env.Meta.Cache)
	}

	second, stdout, stderr := newTestState(market)
	if code := second.run([]string{"tvl", "--markdown", "--protocol", "uniswap", "--chain", "arbitrum"}); code != 0 {
		t.Fatalf("second run failed: %d stderr=%s", code, stderr.String())
	}
	if market.protocolCalls != 1 {
		t.Fatalf("expected one provider call across both runs, got %d", market.protocolCalls)
	}
	if text := stdout.String(); !strings.Contains(text, "**Uniswap**") || !strings.Contains(text, "Arbitrum") {
		t.Fatalf("expected cached reply to render as markdown, got %q", text)
	}
}

func TestCacheKeySeparatesDefaultChains(t *testing.T) {
	isolateEnv(t)
	market := &fakeMarket{}
	runTop := func(chain string) replyEnvelope {
		t.Helper()
		state, stdout, stderr := newTestState(market)
		if code := state.run([]string{"ask", "--default-chain", chain, "top protocols"}); code != 0 {
			t.Fatalf("run with default chain %s failed: %d stderr=%s", chain, code, stderr.String())
		}
		return decodeReplyEnvelope(t, stdout)
	}
	chainOf := func(env replyEnvelope) string {
		t.Helper()
		var rows []model.ProtocolTVL
		if err := json.Unmarshal(env.Data.Response.Result, &rows); err != nil || len(rows) == 0 {
			t.Fatalf("decode protocols: %v result=%s", err, env.Data.Response.Result)
		}
		return rows[0].Chain
	}

	first := runTop("ethereum")
	if first.Meta.Cache.Status != "write" || !strings.EqualFold(chainOf(first), "ethereum") {
		t.Fatalf("unexpected first run: cache=%+v chain=%s", first.Meta.Cache, chainOf(first))
	}
	second := runTop("solana")
	if second.Meta.Cache.Status != "write" || !strings.EqualFold(chainOf(second), "solana") {
		t.Fatalf("expected a fresh fetch for another default chain: cache=%+v chain=%s", second.Meta.Cache, chainOf(second))
	}
	third := runTop("ethereum")
	if third.Meta.Cache.Status != "hit" || !strings.EqualFold(chainOf(third), "ethereum") {
		t.Fatalf("expected cache hit for the first default chain: cache=%+v chain=%s", third.Meta.Cache, chainOf(third))
	}
}

func TestCompareReportsMissingAsPartial(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"protocols", "compare", "--no-cache", "uniswap", "unknownproto"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeReplyEnvelope(t, stdout)
	if !env.Meta.Partial || len(env.Warnings) != 1 || !strings.Contains(env.Warnings[0], "unknownproto") {
		t.Fatalf("expected partial comparison with warning, got meta=%+v warnings=%+v", env.Meta, env.Warnings)
	}

	strict, _, stderr := newTestState(&fakeMarket{})
	code = strict.run([]string{"protocols", "compare", "--strict", "--no-cache", "uniswap", "unknownproto"})
	if code != int(clierr.CodeNotFound) {
		t.Fatalf("expected strict partial failure, got %d stderr=%s", code, stderr.String())
	}
}

func TestTransferWithoutSignerReturnsUnsignedPayload(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"transfer", "--token", "APT", "--amount", "1.5", "--to", testRecipient})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	env := decodeReplyEnvelope(t, stdout)
	var transfer model.Transfer
	if err := json.Unmarshal(env.Data.Response.Result, &transfer); err != nil {
		t.Fatalf("decode transfer: %v", err)
	}
	if transfer.AmountBaseUnits != "150000000" || transfer.Recipient != testRecipient || transfer.Submitted != nil {
		t.Fatalf("unexpected transfer: %+v", transfer)
	}
	if env.Meta.Providers[0].Name != "unsigned" {
		t.Fatalf("expected unsigned provider status, got %+v", env.Meta.Providers)
	}
	if len(env.Warnings) != 1 || !strings.Contains(env.Warnings[0], "not submitted") {
		t.Fatalf("expected unsigned warning, got %+v", env.Warnings)
	}
}

func TestTransferMissingAmountIsInvalidParams(t *testing.T) {
	isolateEnv(t)
	state, _, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"transfer", "--token", "APT", "--to", testRecipient})
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected usage exit code, got %d stderr=%s", code, stderr.String())
	}
	env := decodeReplyEnvelope(t, stderr)
	if env.Data.Action != string(intent.ActionTransfer) || env.Data.Response.Error == nil {
		t.Fatalf("expected failed transfer reply in error envelope, got %+v", env.Data)
	}
}

func TestExtractCommand(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"extract", "--results-only", "compare aave vs compound on ethereum"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var report extractionReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v output=%s", err, stdout.String())
	}
	if report.Action != intent.ActionCompareProtocols {
		t.Fatalf("expected compare action, got %q", report.Action)
	}
	if report.Chain.Value != registry.ChainEthereum || !report.Chain.Found {
		t.Fatalf("unexpected chain extraction: %+v", report.Chain)
	}
	if len(report.Protocols) != 2 || report.Protocols[0] != "aave" || report.Protocols[1] != "compound-finance" {
		t.Fatalf("unexpected protocols: %+v", report.Protocols)
	}
}

func TestNormalizeTokenCommand(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"normalize", "token", "--results-only", "apt"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var got normalized
	if err := json.Unmarshal(stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v output=%s", err, stdout.String())
	}
	if got.Canonical != registry.CoinAPT || got.Symbol != "APT" || got.Decimals == nil || *got.Decimals != 8 {
		t.Fatalf("unexpected normalization: %+v", got)
	}
}

func TestActionsListMapsCommands(t *testing.T) {
	isolateEnv(t)
	state, stdout, stderr := newTestState(&fakeMarket{})
	code := state.run([]string{"actions", "list", "--results-only"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var listing []actionListing
	if err := json.Unmarshal(stdout.Bytes(), &listing); err != nil {
		t.Fatalf("decode: %v output=%s", err, stdout.String())
	}
	if len(listing) != len(intent.All) {
		t.Fatalf("expected %d actions, got %d", len(intent.All), len(listing))
	}
	for _, item := range listing {
		if len(item.Commands) == 0 {
			t.Fatalf("action %s has no CLI command", item.Name)
		}
	}
}

func TestTransferIsRecordedInJournal(t *testing.T) {
	isolateEnv(t)
	state, _, stderr := newTestState(&fakeMarket{})
	if code := state.run([]string{"transfer", "--token", "APT", "--amount", "1.5", "--to", testRecipient}); code != 0 {
		t.Fatalf("transfer failed: %d stderr=%s", code, stderr.String())
	}

	state, stdout, stderr := newTestState(&fakeMarket{})
	if code := state.run([]string{"tx", "list", "--results-only"}); code != 0 {
		t.Fatalf("tx list failed: %d stderr=%s", code, stderr.String())
	}
	var entries []struct {
		ID      string `json:"id"`
		Action  string `json:"action"`
		Status  string `json:"status"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &entries); err != nil {
		t.Fatalf("decode tx list: %v output=%s", err, stdout.String())
	}
	if len(entries) != 1 || entries[0].Action != string(intent.ActionTransfer) || entries[0].Status != "unsigned" {
		t.Fatalf("unexpected journal entries: %+v", entries)
	}
	if !strings.Contains(entries[0].Summary, "1.5") || !strings.Contains(entries[0].Summary, testRecipient) {
		t.Fatalf("unexpected summary: %q", entries[0].Summary)
	}

	state, _, stderr = newTestState(&fakeMarket{})
	if code := state.run([]string{"tx", "show", entries[0].ID}); code != 0 {
		t.Fatalf("tx show failed: %d stderr=%s", code, stderr.String())
	}
}

func TestTxShowUnknownIsNotFound(t *testing.T) {
	isolateEnv(t)
	state, _, _ := newTestState(&fakeMarket{})
	if code := state.run([]string{"tx", "show", "missing"}); code != int(clierr.CodeNotFound) {
		t.Fatalf("expected not found exit code, got %d", code)
	}
}
