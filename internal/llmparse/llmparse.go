// Package llmparse asks an Anthropic model to turn a user message into
// structured action parameters. It is an optional first pass; keyword
// extraction still runs for anything the model leaves empty.
package llmparse

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	clierr "github.com/ggonzalez94/defi-agent/internal/errors"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/payload"
)

const (
	DefaultModel     = "claude-3-5-haiku-latest"
	DefaultMaxTokens = 512
)

// Parser turns free text into action parameters.
type Parser interface {
	Parse(ctx context.Context, text string) (actions.Params, error)
}

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	log       logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, clierr.New(clierr.CodeAuth, "anthropic api key is not configured")
	}
	if log == nil {
		log = logging.Discard()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		log:       log,
	}, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You extract parameters for a DeFi assistant. Reply with a single JSON object and nothing else.\n")
	b.WriteString("Fields (omit any the message does not state): action, protocol, protocols, chain, token, category, limit, at (RFC3339), min_tvl_usd, amount, amount_base_units, recipient, collection, name, description, uri.\n")
	b.WriteString("Never guess amounts or recipients.\n")
	b.WriteString("Actions:\n")
	for _, info := range actions.Catalog() {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
	}
	return b.String()
}

// Parse sends text to the model and decodes its JSON reply. The text field
// of the result is always the original message.
func (c *Client) Parse(ctx context.Context, text string) (actions.Params, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return actions.Params{}, clierr.Wrap(clierr.CodeUnavailable, "parameter extraction request failed", err)
	}

	var reply strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			reply.WriteString(block.Text)
		}
	}
	params, err := decode(reply.String())
	if err != nil {
		return actions.Params{}, err
	}
	params.Text = text
	return params, nil
}

// decode pulls the outermost JSON object out of reply, which may be wrapped
// in prose or a code fence.
func decode(reply string) (actions.Params, error) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return actions.Params{}, clierr.New(clierr.CodeDataFormat, "model reply contains no JSON object")
	}
	raw := []byte(reply[start : end+1])
	if err := payload.Object().Validate(raw); err != nil {
		return actions.Params{}, clierr.Wrap(clierr.CodeDataFormat, "model reply is not a JSON object", err)
	}
	var params actions.Params
	if err := json.Unmarshal(raw, &params); err != nil {
		return actions.Params{}, clierr.Wrap(clierr.CodeDataFormat, "decode model reply", err)
	}
	if params.Action != "" {
		if _, ok := intent.Parse(params.Action); !ok {
			params.Action = ""
		}
	}
	params.DryRun = false
	return params, nil
}

// Enrich fills the empty fields of p from the parser's reading of p.Text.
// Parser failures are logged and p is returned unchanged.
func Enrich(ctx context.Context, parser Parser, p actions.Params, log logrus.FieldLogger) actions.Params {
	if parser == nil || strings.TrimSpace(p.Text) == "" {
		return p
	}
	if log == nil {
		log = logging.Discard()
	}
	parsed, err := parser.Parse(ctx, p.Text)
	if err != nil {
		log.WithError(err).WithField("code", clierr.TagOf(err)).Warn("llm parameter extraction failed, using keyword extraction")
		return p
	}
	return p.Merge(parsed)
}
