package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	mcpTypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

type stubPrices struct{ got string }

func (s *stubPrices) Info() model.ProviderInfo { return model.ProviderInfo{Name: "stub"} }

func (s *stubPrices) Price(_ context.Context, symbol string) (model.Price, error) {
	s.got = symbol
	return model.Price{Symbol: symbol, PriceUSD: 8.25}, nil
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcpTypes.CallToolResult {
	t.Helper()
	req := mcpTypes.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var handler func(context.Context, mcpTypes.CallToolRequest) (*mcpTypes.CallToolResult, error)
	if name == AskTool {
		handler = s.handleAsk
	} else {
		handler = s.handleAction(intentOf(name))
	}
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func textOf(t *testing.T, res *mcpTypes.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcpTypes.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return tc.Text
}

func TestPriceTool(t *testing.T) {
	prices := &stubPrices{}
	s := New(actions.New(actions.Deps{Prices: prices}), nil, "test", nil)

	res := callTool(t, s, "price", map[string]any{"token": "apt"})
	assert.False(t, res.IsError)
	assert.Equal(t, "APT", prices.got)
	assert.Contains(t, textOf(t, res), "**APT**: $8.25")
}

func TestAskToolClassifies(t *testing.T) {
	prices := &stubPrices{}
	s := New(actions.New(actions.Deps{Prices: prices}), nil, "test", nil)

	res := callTool(t, s, AskTool, map[string]any{"text": "what's the price of APT?"})
	assert.False(t, res.IsError)
	assert.Equal(t, "APT", prices.got)

	res = callTool(t, s, AskTool, map[string]any{})
	assert.True(t, res.IsError)
}

func TestActionToolReportsApology(t *testing.T) {
	s := New(actions.New(actions.Deps{}), nil, "test", nil)
	res := callTool(t, s, "protocol_tvl", map[string]any{"text": "tvl please"})
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "Sorry")
	assert.Contains(t, textOf(t, res), "protocol")
}

func TestToolsList(t *testing.T) {
	s := New(actions.New(actions.Deps{}), nil, "test", nil)
	msg := s.MCP().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	buf, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{AskTool, "protocol_tvl", "top_protocols", "compare_protocols", "transfer", "mint_nft"} {
		assert.Contains(t, string(buf), `"name":"`+name+`"`)
	}
}

func TestParamsFrom(t *testing.T) {
	p, err := paramsFrom(map[string]any{
		"protocols": "aave, compound,",
		"limit":     float64(7),
		"dry_run":   true,
		"at":        "2024-05-01",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"aave", "compound"}, p.Protocols)
	assert.Equal(t, 7, p.Limit)
	assert.True(t, p.DryRun)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), *p.At)

	_, err = paramsFrom(map[string]any{"at": "last tuesday"})
	assert.Error(t, err)
}

func intentOf(name string) intent.Action { return intent.Action(name) }
