// Package aptos submits pre-signed entry-function transactions to an Aptos
// fullnode and waits for them to be committed.
package aptos

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/payload"
)

const (
	TransferCoinsFunction = "0x1::aptos_account::transfer_coins"
	TransferFAFunction    = "0x1::primary_fungible_store::transfer"
	FungibleMetadataType  = "0x1::fungible_asset::Metadata"
	MintTokenFunction     = "0x4::aptos_token::mint"
)

// Submitter sends one entry-function call and reports its outcome.
type Submitter interface {
	Submit(ctx context.Context, fn model.EntryFunction) (model.TxResult, error)
}

type Options struct {
	PollInterval time.Duration
	WaitTimeout  time.Duration
}

func DefaultOptions() Options {
	return Options{
		PollInterval: time.Second,
		WaitTimeout:  time.Minute,
	}
}

type Client struct {
	http   *httpx.Client
	base   string
	signer Signer
	opts   Options
}

func New(httpClient *httpx.Client, fullnodeURL string, signer Signer, opts Options) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = DefaultOptions().WaitTimeout
	}
	return &Client{
		http:   httpClient,
		base:   strings.TrimRight(strings.TrimSpace(fullnodeURL), "/"),
		signer: signer,
		opts:   opts,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:         "aptos",
		Type:         "chain",
		RequiresKey:  false,
		Capabilities: []string{"tx.transfer", "tx.mint_nft"},
		BaseURL:      c.base,
	}
}

type entryFunctionPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

func toPayload(fn model.EntryFunction) entryFunctionPayload {
	typeArgs := fn.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := fn.Arguments
	if args == nil {
		args = []any{}
	}
	return entryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      fn.Function,
		TypeArguments: typeArgs,
		Arguments:     args,
	}
}

type txResp struct {
	Hash     string `json:"hash"`
	Type     string `json:"type"`
	Success  *bool  `json:"success"`
	VMStatus string `json:"vm_status"`
	Version  string `json:"version"`
}

// Submit signs fn, posts it and blocks until the transaction is committed
// or the wait timeout elapses.
func (c *Client) Submit(ctx context.Context, fn model.EntryFunction) (model.TxResult, error) {
	if c.signer == nil {
		return model.TxResult{}, clierr.New(clierr.CodeUsage, "no signer configured")
	}
	signed, err := c.signer.Sign(ctx, fn)
	if err != nil {
		return model.TxResult{}, err
	}

	var pending txResp
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.base+"/v1/transactions", signed, nil, payload.ObjectWithString("hash"), &pending); err != nil {
		return model.TxResult{}, err
	}
	return c.Wait(ctx, pending.Hash)
}

// Wait polls the transaction by hash until it leaves the pending state.
// Lookups that fail while the node has not indexed the hash yet are retried
// until the timeout. Malformed, unauthorized or rejected lookups return at once.
func (c *Client) Wait(ctx context.Context, hash string) (model.TxResult, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.WaitTimeout)
	defer cancel()
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	endpoint := c.base + "/v1/transactions/by_hash/" + url.PathEscape(hash)
	for {
		var tx txResp
		err := c.http.GetJSON(waitCtx, endpoint, payload.ObjectWithString("type"), &tx)
		if err == nil && tx.Type != "pending_transaction" {
			result := model.TxResult{Hash: hash, VMStatus: tx.VMStatus, Version: tx.Version}
			if tx.Success != nil && *tx.Success {
				result.Success = true
				return result, nil
			}
			return result, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("transaction %s failed on-chain: %s", hash, tx.VMStatus))
		}
		if err != nil && permanent(err) {
			return model.TxResult{Hash: hash}, err
		}
		select {
		case <-waitCtx.Done():
			return model.TxResult{Hash: hash}, clierr.Wrap(clierr.CodeTimeout, "timed out waiting for transaction", waitCtx.Err())
		case <-ticker.C:
		}
	}
}

// permanent reports lookup errors that polling again cannot fix.
func permanent(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	switch cErr.Code {
	case clierr.CodeDataFormat, clierr.CodeAuth, clierr.CodeUsage:
		return true
	}
	return false
}

// MarshalPayload renders fn in the fullnode's entry_function_payload form.
func MarshalPayload(fn model.EntryFunction) ([]byte, error) {
	return json.Marshal(toPayload(fn))
}
