// Package mcpserver exposes the actions as MCP tools so an agent framework
// can call them over stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpTypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/defi-agent/internal/actions"
	"github.com/ggonzalez94/defi-agent/internal/intent"
	"github.com/ggonzalez94/defi-agent/internal/llmparse"
	"github.com/ggonzalez94/defi-agent/internal/logging"
	"github.com/ggonzalez94/defi-agent/internal/out"
)

const (
	ServerName = "defi-agent"
	AskTool    = "ask"
)

var paramDescriptions = map[string]string{
	"text":              "The user's request in natural language",
	"protocol":          "Protocol name or DefiLlama slug",
	"protocols":         "Comma separated protocol names",
	"chain":             "Chain name, e.g. Aptos or Arbitrum",
	"token":             "Token symbol or on-chain identifier",
	"category":          "DefiLlama protocol category, e.g. Dexs",
	"limit":             "Number of results (1-100)",
	"at":                "Historical date, RFC3339 or YYYY-MM-DD",
	"min_tvl_usd":       "Minimum pool TVL in USD",
	"amount":            "Decimal amount, e.g. 1.5",
	"amount_base_units": "Amount in base units",
	"recipient":         "Recipient account address",
	"collection":        "NFT collection name",
	"name":              "NFT name",
	"description":       "NFT description",
	"uri":               "NFT metadata URI",
	"dry_run":           "Return the unsigned payload without submitting",
}

var numberParams = map[string]bool{"limit": true, "min_tvl_usd": true}

type Server struct {
	svc    *actions.Service
	parser llmparse.Parser
	log    logrus.FieldLogger
	mcp    *server.MCPServer
}

// New registers an ask tool plus one tool per action. parser may be nil.
func New(svc *actions.Service, parser llmparse.Parser, version string, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		svc:    svc,
		parser: parser,
		log:    log,
		mcp:    server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
	}
	s.mcp.AddTool(mcpTypes.NewTool(AskTool,
		mcpTypes.WithDescription("Answer a DeFi request written in natural language"),
		mcpTypes.WithString("text", mcpTypes.Required(), mcpTypes.Description(paramDescriptions["text"])),
	), s.handleAsk)
	for _, info := range actions.Catalog() {
		s.mcp.AddTool(toolFor(info.Name, info.Description, info.Params), s.handleAction(intent.Action(info.Name)))
	}
	return s
}

func toolFor(name, description string, params []string) mcpTypes.Tool {
	opts := []mcpTypes.ToolOption{
		mcpTypes.WithDescription(description),
		mcpTypes.WithString("text", mcpTypes.Description("Optional free text; explicit arguments take precedence")),
	}
	for _, p := range params {
		desc := mcpTypes.Description(paramDescriptions[p])
		switch {
		case numberParams[p]:
			opts = append(opts, mcpTypes.WithNumber(p, desc))
		case p == "dry_run":
			opts = append(opts, mcpTypes.WithBoolean(p, desc))
		default:
			opts = append(opts, mcpTypes.WithString(p, desc))
		}
	}
	return mcpTypes.NewTool(name, opts...)
}

func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio blocks serving JSON-RPC on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleAsk(ctx context.Context, req mcpTypes.CallToolRequest) (*mcpTypes.CallToolResult, error) {
	text, _ := req.GetArguments()["text"].(string)
	if strings.TrimSpace(text) == "" {
		return mcpTypes.NewToolResultError("text is required"), nil
	}
	p := llmparse.Enrich(ctx, s.parser, actions.Params{Text: text}, s.log)
	reply := s.svc.Handle(ctx, p)
	return toResult(string(reply.Action), reply), nil
}

func (s *Server) handleAction(action intent.Action) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpTypes.CallToolRequest) (*mcpTypes.CallToolResult, error) {
		p, err := paramsFrom(req.GetArguments())
		if err != nil {
			return mcpTypes.NewToolResultError(err.Error()), nil
		}
		p.Action = string(action)
		reply := actions.Reply{Action: action, Response: s.svc.Run(ctx, action, p)}
		return toResult(string(action), reply), nil
	}
}

func toResult(action string, reply actions.Reply) *mcpTypes.CallToolResult {
	text := out.Markdown(action, reply.Response)
	if !reply.Response.Success {
		return mcpTypes.NewToolResultError(text)
	}
	return mcpTypes.NewToolResultText(text)
}

func paramsFrom(args map[string]any) (actions.Params, error) {
	str := func(key string) string {
		v, _ := args[key].(string)
		return strings.TrimSpace(v)
	}
	p := actions.Params{
		Text:            str("text"),
		Protocol:        str("protocol"),
		Chain:           str("chain"),
		Token:           str("token"),
		Category:        str("category"),
		Amount:          str("amount"),
		AmountBaseUnits: str("amount_base_units"),
		Recipient:       str("recipient"),
		Collection:      str("collection"),
		Name:            str("name"),
		Description:     str("description"),
		URI:             str("uri"),
	}
	if v := str("protocols"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				p.Protocols = append(p.Protocols, part)
			}
		}
	}
	if v, ok := args["limit"].(float64); ok {
		p.Limit = int(v)
	}
	if v, ok := args["min_tvl_usd"].(float64); ok {
		p.MinTVLUSD = v
	}
	if v, ok := args["dry_run"].(bool); ok {
		p.DryRun = v
	}
	if v := str("at"); v != "" {
		ts, err := ParseDate(v)
		if err != nil {
			return actions.Params{}, err
		}
		p.At = &ts
	}
	return p, nil
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates (UTC).
func ParseDate(v string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC(), nil
	}
	if ts, err := time.Parse("2006-01-02", v); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("at must be RFC3339 or YYYY-MM-DD, got %q", v)
}
