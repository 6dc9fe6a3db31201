package aptos

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/httpx"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/payload"
)

// Signer turns an entry-function call into a signed transaction body that
// the fullnode accepts on POST /v1/transactions. Keys never enter this
// process; implementations delegate to a wallet or signing service.
type Signer interface {
	Address() string
	Sign(ctx context.Context, fn model.EntryFunction) (json.RawMessage, error)
}

// RemoteSigner asks an HTTP signing service to build and sign the
// transaction for a fixed sender account.
type RemoteSigner struct {
	http     *httpx.Client
	endpoint string
	sender   string
	token    string
}

func NewRemoteSigner(httpClient *httpx.Client, endpoint, sender, token string) *RemoteSigner {
	return &RemoteSigner{
		http:     httpClient,
		endpoint: strings.TrimSpace(endpoint),
		sender:   strings.ToLower(strings.TrimSpace(sender)),
		token:    strings.TrimSpace(token),
	}
}

func (s *RemoteSigner) Address() string { return s.sender }

type signRequest struct {
	Sender  string               `json:"sender"`
	Payload entryFunctionPayload `json:"payload"`
}

func (s *RemoteSigner) Sign(ctx context.Context, fn model.EntryFunction) (json.RawMessage, error) {
	body, err := json.Marshal(signRequest{Sender: s.sender, Payload: toPayload(fn)})
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode signing request", err)
	}
	headers := map[string]string{}
	if s.token != "" {
		headers["Authorization"] = "Bearer " + s.token
	}
	var signed json.RawMessage
	if _, err := httpx.DoBodyJSON(ctx, s.http, http.MethodPost, s.endpoint, body, headers, payload.ObjectWithString("signature.type"), &signed); err != nil {
		return nil, err
	}
	return signed, nil
}
