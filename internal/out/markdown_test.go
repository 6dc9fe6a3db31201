package out

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/config"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

func TestMarkdownProtocolTVL(t *testing.T) {
	resp := model.OK(model.ProtocolTVL{Protocol: "uniswap", Name: "Uniswap", Chain: "Arbitrum", TVLUSD: 2_340_000_000}).Erase()
	got := Markdown("protocol_tvl", resp)
	assert.Equal(t, "**Uniswap** TVL on Arbitrum: $2.34B\n", got)

	resp = model.OK(model.ProtocolTVL{Protocol: "aave", TVLUSD: 12_500, Note: "aave is not deployed on Aptos"}).Erase()
	got = Markdown("protocol_tvl", resp)
	assert.Contains(t, got, "across all chains: $12.50K")
	assert.Contains(t, got, "_aave is not deployed on Aptos_")
}

func TestMarkdownLists(t *testing.T) {
	chains := model.OK([]model.ChainTVL{{Rank: 1, Chain: "Ethereum", TVLUSD: 5e10}, {Rank: 2, Chain: "Solana", TVLUSD: 8e9}}).Erase()
	got := Markdown("top_chains", chains)
	assert.Contains(t, got, "1. **Ethereum**: $50.00B")
	assert.Contains(t, got, "2. **Solana**: $8.00B")

	pools := model.OK([]model.Pool{{Symbol: "USDC", Project: "thala", Chain: "Aptos", TVLUSD: 1_500_000, APY: 7.25}}).Erase()
	got = Markdown("pools", pools)
	assert.Contains(t, got, "| USDC | thala | Aptos | $1.50M | 7.25% |")
}

func TestMarkdownUnsignedTransfer(t *testing.T) {
	resp := model.OK(model.Transfer{
		Symbol:        "APT",
		Recipient:     "0xb0b",
		AmountDecimal: "1.5",
		Payload:       model.EntryFunction{Function: "0x1::aptos_account::transfer_coins"},
	}).Erase()
	got := Markdown("transfer", resp)
	assert.Contains(t, got, "Transfer of **1.5 APT** to `0xb0b`")
	assert.Contains(t, got, "Unsigned payload")
	assert.Contains(t, got, "transfer_coins")
}

func TestMarkdownApologies(t *testing.T) {
	cases := []struct {
		action string
		code   string
		msg    string
		want   []string
	}{
		{"protocol_tvl", clierr.TagInvalidParams, "missing required parameter: protocol (supported: thala, joule-finance)", []string{"Sorry", "missing required parameter: protocol", "thala, joule-finance", "Try something like"}},
		{"protocol_tvl", clierr.TagNotFound, "Aave has no TVL on Solana", []string{"couldn't find", "Solana"}},
		{"price", clierr.TagAPIError, "http 503", []string{"isn't responding", "try again"}},
		{"pools", clierr.TagDataFormat, "unexpected result shape", []string{"couldn't read"}},
		{"", clierr.TagInternal, "boom", []string{"on my side"}},
	}
	for _, tc := range cases {
		got := Markdown(tc.action, model.Fail[any](tc.code, tc.msg))
		for _, w := range tc.want {
			assert.Contains(t, got, w, "code %s", tc.code)
		}
		assert.False(t, strings.Contains(got, "panic"))
	}
}

func TestRenderMarkdownReply(t *testing.T) {
	env := model.Envelope{
		Success: true,
		Data: actions.Reply{
			Action:   intent.ActionChainTVL,
			Response: model.OK(model.ChainTVL{Chain: "Aptos", TVLUSD: 1_000_000}).Erase(),
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, env, config.Settings{OutputMode: "markdown"}))
	assert.Equal(t, "**Aptos** TVL: $1.00M\n", buf.String())
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$999.00", FormatUSD(999))
	assert.Equal(t, "$1.00K", FormatUSD(1000))
	assert.Equal(t, "$3.20T", FormatUSD(3.2e12))
	assert.Equal(t, "$-2.00M", FormatUSD(-2e6))
}
