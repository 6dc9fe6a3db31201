package actions

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

func TestDecodeReplyRestoresConcreteResult(t *testing.T) {
	in := Reply{
		Action:   intent.ActionTopChains,
		Response: model.OK([]model.ChainTVL{{Rank: 1, Chain: "Ethereum", TVLUSD: 5e10}}).Erase(),
	}
	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := DecodeReply(raw)
	require.NoError(t, err)
	assert.Equal(t, intent.ActionTopChains, out.Action)
	require.True(t, out.Response.Success)
	chains, ok := (*out.Response.Result).([]model.ChainTVL)
	require.True(t, ok, "expected []model.ChainTVL, got %T", *out.Response.Result)
	assert.Equal(t, "Ethereum", chains[0].Chain)
}

func TestDecodeReplyFailure(t *testing.T) {
	raw := []byte(`{"action":"price","response":{"success":false,"error":{"code":"NOT_FOUND","message":"no feed"}}}`)
	out, err := DecodeReply(raw)
	require.NoError(t, err)
	assert.False(t, out.Response.Success)
	assert.Nil(t, out.Response.Result)

	replyErr := out.Err()
	require.Error(t, replyErr)
	assert.Equal(t, int(clierr.CodeNotFound), clierr.ExitCode(replyErr))
	assert.Equal(t, "no feed", replyErr.Error())
}

func TestDecodeReplyRejectsInconsistentResponse(t *testing.T) {
	_, err := DecodeReply([]byte(`{"action":"price","response":{"success":true}}`))
	assert.Error(t, err)

	_, err = DecodeReply([]byte(`not json`))
	assert.Error(t, err)
}

func TestReplyErrNilOnSuccess(t *testing.T) {
	r := Reply{Action: intent.ActionPrice, Response: model.OK(model.Price{Symbol: "APT", PriceUSD: 8}).Erase()}
	assert.NoError(t, r.Err())
}
