package actions

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ggonzalez94/defi-agent/internal/assemble"
	"github.com/ggonzalez94/defi-agent/internal/chain/aptos"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/id"
	"github.com/ggonzalez94/defi-agent/internal/lookup"
	"github.com/ggonzalez94/defi-agent/internal/model"
	"github.com/ggonzalez94/defi-agent/internal/registry"
)

// Transfer builds a transfer payload and submits it when a submitter is
// configured. Amounts are never defaulted: a request without one fails with
// INVALID_PARAMS so the user is asked instead.
func (s *Service) Transfer(ctx context.Context, p Params) model.Response[model.Transfer] {
	op := assemble.Op{Action: "transfer", Endpoint: "/v1/transactions", Params: map[string]any{"text": p.Text, "token": p.Token, "recipient": p.Recipient}}
	fail := func(err error) model.Response[model.Transfer] {
		return assemble.Failure[model.Transfer](s.log, op, err)
	}

	ref := s.token(p)
	if ref == "" {
		return fail(assemble.MissingParam("token", s.supported(lookup.CategoryToken, 10)...))
	}
	token, err := s.norm.ResolveToken(ref)
	if err != nil {
		return fail(err)
	}

	recipient := strings.TrimSpace(p.Recipient)
	if recipient == "" {
		recipient, _ = s.ex.Recipient(p.Text)
	}
	if recipient == "" {
		return fail(assemble.MissingParam("recipient"))
	}
	if !id.IsAddress(recipient) {
		return fail(clierr.New(clierr.CodeUsage, fmt.Sprintf("recipient %s is not an account address", recipient)))
	}

	decimal, baseUnits := strings.TrimSpace(p.Amount), strings.TrimSpace(p.AmountBaseUnits)
	if decimal == "" && baseUnits == "" {
		decimal, _ = s.ex.Amount(p.Text)
	}
	if decimal == "" && baseUnits == "" {
		return fail(assemble.MissingParam("amount"))
	}
	base, dec, err := id.NormalizeAmount(baseUnits, decimal, token.Decimals)
	if err != nil {
		return fail(err)
	}
	if strings.Trim(base, "0") == "" {
		return fail(clierr.New(clierr.CodeUsage, "amount must be greater than zero"))
	}

	out := model.Transfer{
		Token:           token.ID,
		Symbol:          token.Symbol,
		Recipient:       recipient,
		AmountDecimal:   dec,
		AmountBaseUnits: base,
		Payload:         transferPayload(token.ID, recipient, base),
	}
	op.Params["token"] = token.ID
	op.Params["recipient"] = recipient
	op.Params["amount"] = base
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.Transfer, error) {
		tx, err := s.submit(ctx, out.Payload, p.DryRun)
		if err != nil {
			return model.Transfer{}, err
		}
		out.Submitted = tx
		return out, nil
	})
}

// transferPayload picks the coin entry function for Move struct paths and
// the primary store transfer for fungible asset metadata addresses.
func transferPayload(tokenID, recipient, baseUnits string) model.EntryFunction {
	if registry.IsCoinType(tokenID) {
		return model.EntryFunction{
			Function:      aptos.TransferCoinsFunction,
			TypeArguments: []string{tokenID},
			Arguments:     []any{recipient, baseUnits},
		}
	}
	return model.EntryFunction{
		Function:      aptos.TransferFAFunction,
		TypeArguments: []string{aptos.FungibleMetadataType},
		Arguments:     []any{tokenID, recipient, baseUnits},
	}
}

func (s *Service) submit(ctx context.Context, fn model.EntryFunction, dryRun bool) (*model.TxResult, error) {
	if s.submitter == nil || dryRun {
		return nil, nil
	}
	tx, err := s.submitter.Submit(ctx, fn)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

var (
	collectionPattern = regexp.MustCompile("(?i)\\bcollection\\s+(?:called\\s+|named\\s+)?[\"`]([^\"`]+)[\"`]")
	namePattern       = regexp.MustCompile("(?i)\\b(?:called|named|name)\\s+[\"`]([^\"`]+)[\"`]")
	uriPattern        = regexp.MustCompile(`https?://[^\s"'` + "`" + `]+`)
)

// MintNFT mints a digital asset into an existing collection owned by the
// signer. Collection and name come from explicit params or quoted strings
// in the text: labelled quotes first, then the remaining quotes in order
// (name, then collection).
func (s *Service) MintNFT(ctx context.Context, p Params) model.Response[model.NFTMint] {
	op := assemble.Op{Action: "mint_nft", Endpoint: "/v1/transactions", Params: map[string]any{"text": p.Text}}
	fail := func(err error) model.Response[model.NFTMint] {
		return assemble.Failure[model.NFTMint](s.log, op, err)
	}

	collection, name := strings.TrimSpace(p.Collection), strings.TrimSpace(p.Name)
	text := strings.NewReplacer("“", "\"", "”", "\"").Replace(p.Text)
	if collection == "" {
		if m := collectionPattern.FindStringSubmatch(text); m != nil {
			collection = strings.TrimSpace(m[1])
		}
	}
	if name == "" {
		if m := namePattern.FindStringSubmatch(text); m != nil && !strings.EqualFold(strings.TrimSpace(m[1]), collection) {
			name = strings.TrimSpace(m[1])
		}
	}
	for _, q := range s.ex.Quoted(text) {
		if q == collection || q == name {
			continue
		}
		switch {
		case name == "":
			name = q
		case collection == "":
			collection = q
		}
	}
	if collection == "" {
		return fail(assemble.MissingParam("collection"))
	}
	if name == "" {
		return fail(assemble.MissingParam("name"))
	}

	uri := strings.TrimSpace(p.URI)
	if uri == "" {
		uri = uriPattern.FindString(text)
	}
	description := strings.TrimSpace(p.Description)
	if description == "" {
		description = name
	}

	out := model.NFTMint{
		Collection:  collection,
		Name:        name,
		Description: description,
		URI:         uri,
		Payload: model.EntryFunction{
			Function: aptos.MintTokenFunction,
			Arguments: []any{
				collection, description, name, uri,
				[]string{}, []string{}, []string{},
			},
		},
	}
	op.Params["collection"] = collection
	op.Params["name"] = name
	return assemble.Run(ctx, s.log, op, func(ctx context.Context) (model.NFTMint, error) {
		tx, err := s.submit(ctx, out.Payload, p.DryRun)
		if err != nil {
			return model.NFTMint{}, err
		}
		out.Submitted = tx
		return out, nil
	})
}
