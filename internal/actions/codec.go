package actions

import (
	"encoding/json"
	"fmt"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/model"
)

// Err returns the reply's failure as a typed error, or nil on success.
func (r Reply) Err() error {
	if r.Response.Success {
		return nil
	}
	if r.Response.Error == nil {
		return clierr.New(clierr.CodeInternal, "action failed without an error")
	}
	return clierr.New(clierr.CodeForTag(r.Response.Error.Code), r.Response.Error.Message)
}

type wireReply struct {
	Action   intent.Action `json:"action"`
	Response struct {
		Success bool                 `json:"success"`
		Result  json.RawMessage      `json:"result"`
		Error   *model.ResponseError `json:"error"`
	} `json:"response"`
}

// DecodeReply restores a serialized Reply with its result decoded into the
// concrete type the action produces.
func DecodeReply(raw []byte) (Reply, error) {
	var w wireReply
	if err := json.Unmarshal(raw, &w); err != nil {
		return Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	reply := Reply{Action: w.Action}
	reply.Response.Success = w.Response.Success
	reply.Response.Error = w.Response.Error
	if len(w.Response.Result) == 0 || string(w.Response.Result) == "null" {
		if !reply.Response.Valid() {
			return Reply{}, fmt.Errorf("decode reply: %s response without result", w.Action)
		}
		return reply, nil
	}

	var (
		result any
		err    error
	)
	switch w.Action {
	case intent.ActionProtocolTVL:
		result, err = decodeAs[model.ProtocolTVL](w.Response.Result)
	case intent.ActionChainTVL:
		result, err = decodeAs[model.ChainTVL](w.Response.Result)
	case intent.ActionTopProtocols:
		result, err = decodeAs[[]model.ProtocolTVL](w.Response.Result)
	case intent.ActionTopChains:
		result, err = decodeAs[[]model.ChainTVL](w.Response.Result)
	case intent.ActionCompareProtocols:
		result, err = decodeAs[model.ProtocolComparison](w.Response.Result)
	case intent.ActionPools:
		result, err = decodeAs[[]model.Pool](w.Response.Result)
	case intent.ActionPrice:
		result, err = decodeAs[model.Price](w.Response.Result)
	case intent.ActionTransfer:
		result, err = decodeAs[model.Transfer](w.Response.Result)
	case intent.ActionMintNFT:
		result, err = decodeAs[model.NFTMint](w.Response.Result)
	default:
		result, err = decodeAs[any](w.Response.Result)
	}
	if err != nil {
		return Reply{}, fmt.Errorf("decode %s result: %w", w.Action, err)
	}
	reply.Response.Result = &result
	if !reply.Response.Valid() {
		return Reply{}, fmt.Errorf("decode reply: inconsistent %s response", w.Action)
	}
	return reply, nil
}

func decodeAs[T any](raw json.RawMessage) (any, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
